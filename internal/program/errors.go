package program

import "fmt"

// Error is a program failure with a stable numeric code. Any Error aborts the
// enclosing transaction.
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("program error %d (%s): %s", e.Code, e.Name, e.Msg)
}

const errorOffset = 6000

var (
	ErrAlreadyInitialized       = &Error{errorOffset + 0, "AlreadyInitialized", "market is already initialized"}
	ErrUnauthorized             = &Error{errorOffset + 1, "Unauthorized", "caller is not the admin"}
	ErrAlreadySettled           = &Error{errorOffset + 2, "AlreadySettled", "prediction is already settled"}
	ErrNotYetExpired            = &Error{errorOffset + 3, "NotYetExpired", "prediction has not expired"}
	ErrInvalidAmount            = &Error{errorOffset + 4, "InvalidAmount", "amount must be greater than zero"}
	ErrInvalidTimestampRange    = &Error{errorOffset + 5, "InvalidTimestampRange", "expiry must be after start"}
	ErrMintMismatch             = &Error{errorOffset + 6, "MintMismatch", "token mint does not match the market asset"}
	ErrArithmeticOverflow       = &Error{errorOffset + 7, "ArithmeticOverflow", "arithmetic overflow"}
	ErrArithmeticUnderflow      = &Error{errorOffset + 8, "ArithmeticUnderflow", "arithmetic underflow"}
	ErrInsufficientVaultBalance = &Error{errorOffset + 9, "InsufficientVaultBalance", "vault balance is too low"}
	ErrInvalidFeeRate           = &Error{errorOffset + 10, "InvalidFeeRate", "fee rate must be between 0 and 100"}
	ErrInvalidTokenAccount      = &Error{errorOffset + 11, "InvalidTokenAccount", "token account does not belong to the expected owner"}
	ErrInvalidPredictionType    = &Error{errorOffset + 12, "InvalidPredictionType", "prediction type must be up or down"}
	ErrAccountNotInitialized    = &Error{errorOffset + 13, "AccountNotInitialized", "account is not initialized"}
	ErrInvalidAccount           = &Error{errorOffset + 14, "InvalidAccount", "account does not match its derived address"}
	ErrInvalidInstruction       = &Error{errorOffset + 15, "InvalidInstruction", "instruction data could not be decoded"}
)

var allErrors = []*Error{
	ErrAlreadyInitialized, ErrUnauthorized, ErrAlreadySettled, ErrNotYetExpired,
	ErrInvalidAmount, ErrInvalidTimestampRange, ErrMintMismatch, ErrArithmeticOverflow,
	ErrArithmeticUnderflow, ErrInsufficientVaultBalance, ErrInvalidFeeRate,
	ErrInvalidTokenAccount, ErrInvalidPredictionType, ErrAccountNotInitialized,
	ErrInvalidAccount, ErrInvalidInstruction,
}

// ErrorByCode looks up a program error by its numeric code.
func ErrorByCode(code uint32) (*Error, bool) {
	for _, e := range allErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}
