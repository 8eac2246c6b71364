// Package token is the token-transfer adapter: a minimal fungible-token
// program holding mints and balances. It is the only program that changes
// balances. A transfer moves the full amount or aborts the transaction, and
// the authority may prove itself with a transaction signature or, for derived
// addresses, with seeds presented by the owning program.
package token

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/codec"
	"github.com/alanyoungcy/binaryoptions/internal/derive"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// ProgramID is the token program's address.
var ProgramID = solana.TokenProgramID

var (
	mintTag    = codec.AccountDiscriminator("Mint")
	accountTag = codec.AccountDiscriminator("TokenAccount")
)

var (
	ErrInvalidInstruction = errors.New("token: invalid instruction")
	ErrInvalidAccount     = errors.New("token: invalid account")
	ErrInsufficientFunds  = errors.New("token: insufficient funds")
	ErrMintMismatch       = errors.New("token: mint mismatch")
	ErrOwnerMismatch      = errors.New("token: owner does not match")
	ErrMissingSignature   = errors.New("token: missing required signature")
	ErrOverflow           = errors.New("token: arithmetic overflow")
)

// Mint describes a fungible token.
type Mint struct {
	Authority solana.PublicKey
	Supply    uint64
	Decimals  uint8
}

// Account is a balance of one mint held by one owner.
type Account struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// DecodeMint decodes a mint record, checking the owning program first.
func DecodeMint(acct domain.Account) (Mint, error) {
	var m Mint
	if !acct.Owner.Equals(ProgramID) {
		return m, ErrInvalidAccount
	}
	if err := codec.Decode(mintTag, acct.Data, &m); err != nil {
		return m, ErrInvalidAccount
	}
	return m, nil
}

// DecodeAccount decodes a token account record, checking the owning program
// first.
func DecodeAccount(acct domain.Account) (Account, error) {
	var a Account
	if !acct.Owner.Equals(ProgramID) {
		return a, ErrInvalidAccount
	}
	if err := codec.Decode(accountTag, acct.Data, &a); err != nil {
		return a, ErrInvalidAccount
	}
	return a, nil
}

// AccountTag is the discriminator of token account records.
func AccountTag() []byte { return accountTag.Bytes() }

// AssociatedAddress returns the canonical token account of owner for mint.
func AssociatedAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := derive.AssociatedTokenAddress(owner, mint, ProgramID)
	return addr, err
}
