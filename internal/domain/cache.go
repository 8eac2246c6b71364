package domain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// AccountCache provides fast account snapshot lookups for read paths. The
// ledger never reads through it.
type AccountCache interface {
	Set(ctx context.Context, acct Account) error
	Get(ctx context.Context, address solana.PublicKey) (Account, error)
	Invalidate(ctx context.Context, address solana.PublicKey) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry of the durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
