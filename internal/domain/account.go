package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// TagSize is the length of the discriminator prefix carried by every account
// payload.
const TagSize = 8

// Account is a ledger account: an address, the program that owns it and its
// serialized state. Version increases by one on every committed write and is
// zero for an account that does not exist yet.
type Account struct {
	Address   solana.PublicKey
	Owner     solana.PublicKey
	Data      []byte
	Version   uint64
	UpdatedAt time.Time
}

// Tag returns the discriminator prefix of the payload, or nil when the payload
// is shorter than TagSize.
func (a Account) Tag() []byte {
	if len(a.Data) < TagSize {
		return nil
	}
	return a.Data[:TagSize]
}

// Clone returns a deep copy so callers can mutate Data freely.
func (a Account) Clone() Account {
	out := a
	out.Data = append([]byte(nil), a.Data...)
	return out
}

// AccountWrite is one entry of an atomic commit. ExpectedVersion is the
// version the writer observed; zero means the account must not exist yet.
type AccountWrite struct {
	Account         Account
	ExpectedVersion uint64
}
