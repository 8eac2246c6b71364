package domain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists ledger accounts.
//
// Commit applies every write or none of them. A write whose ExpectedVersion
// does not match the stored version fails the whole commit with ErrConflict.
// ListByOwner returns accounts in creation order.
type AccountStore interface {
	Get(ctx context.Context, address solana.PublicKey) (Account, error)
	Commit(ctx context.Context, writes []AccountWrite) error
	ListByOwner(ctx context.Context, owner solana.PublicKey, tag []byte, opts ListOpts) ([]Account, error)
	Close() error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
