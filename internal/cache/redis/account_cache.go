package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

const defaultAccountTTL = time.Minute

// AccountCache implements domain.AccountCache using Redis hashes with JSON-
// serialized account snapshots and a per-owner index of recently written
// addresses.
//
// Key schema:
//
//	account:{address}      - hash with fields "data" (JSON) and "version"
//	account:owner:{owner}  - set of cached addresses owned by owner
type AccountCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAccountCache creates an AccountCache backed by the given Client.
func NewAccountCache(c *Client, ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		ttl = defaultAccountTTL
	}
	return &AccountCache{rdb: c.rdb, ttl: ttl}
}

func accountKey(addr solana.PublicKey) string     { return "account:" + addr.String() }
func ownerIndexKey(owner solana.PublicKey) string { return "account:owner:" + owner.String() }

// setIfNewer only replaces a snapshot with a higher version, so a slow
// writer cannot roll the cache back.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
    return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// Set stores a committed account snapshot.
func (ac *AccountCache) Set(ctx context.Context, acct domain.Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("redis: marshal account %s: %w", acct.Address, err)
	}
	if err := setIfNewer.Run(ctx, ac.rdb,
		[]string{accountKey(acct.Address)},
		data, acct.Version, ac.ttl.Milliseconds(),
	).Err(); err != nil {
		return fmt.Errorf("redis: set account %s: %w", acct.Address, err)
	}

	pipe := ac.rdb.TxPipeline()
	pipe.SAdd(ctx, ownerIndexKey(acct.Owner), acct.Address.String())
	pipe.Expire(ctx, ownerIndexKey(acct.Owner), ac.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: index account %s: %w", acct.Address, err)
	}
	return nil
}

// Get retrieves an account snapshot. It returns domain.ErrNotFound on a miss.
func (ac *AccountCache) Get(ctx context.Context, address solana.PublicKey) (domain.Account, error) {
	data, err := ac.rdb.HGet(ctx, accountKey(address), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("redis: get account %s: %w", address, err)
	}

	var acct domain.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return domain.Account{}, fmt.Errorf("redis: unmarshal account %s: %w", address, err)
	}
	return acct, nil
}

// Invalidate removes an account snapshot and its owner index entry.
func (ac *AccountCache) Invalidate(ctx context.Context, address solana.PublicKey) error {
	acct, err := ac.Get(ctx, address)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate account %s: %w", address, err)
	}

	pipe := ac.rdb.TxPipeline()
	pipe.Del(ctx, accountKey(address))
	if err == nil {
		pipe.SRem(ctx, ownerIndexKey(acct.Owner), address.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate account %s: %w", address, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AccountCache = (*AccountCache)(nil)
