package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransaction   = errors.New("ledger: invalid transaction")
	ErrInvalidSignature     = errors.New("ledger: invalid signature")
	ErrBlockhashNotFound    = errors.New("ledger: recent hash not found")
	ErrDuplicateTransaction = errors.New("ledger: transaction already processed")
	ErrUnknownProgram       = errors.New("ledger: unknown program")
	ErrAccountNotWritable   = errors.New("ledger: account not writable")
	ErrAccountNotOwned      = errors.New("ledger: account not owned by program")
	ErrAccountExists        = errors.New("ledger: account already exists")
	ErrAccountNotFound      = errors.New("ledger: account not found")
	ErrMissingSigner        = errors.New("ledger: missing required signature")
	ErrPrivilegeEscalation  = errors.New("ledger: cross-program privilege escalation")
	ErrCallDepth            = errors.New("ledger: cross-program invocation too deep")
)

// InstructionError reports which top-level instruction aborted a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("ledger: instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }
