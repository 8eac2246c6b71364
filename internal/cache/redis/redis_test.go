package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/cache/redis"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// connect needs a scratch Redis in OPTIONSD_TEST_REDIS_ADDR.
func connect(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("OPTIONSD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OPTIONSD_TEST_REDIS_ADDR not set")
	}
	c, err := redis.New(context.Background(), redis.ClientConfig{Addr: addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLockManager(t *testing.T) {
	c := connect(t)
	ctx := context.Background()
	lm := redis.NewLockManager(c)
	key := "test:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestAccountCacheKeepsNewestVersion(t *testing.T) {
	c := connect(t)
	ctx := context.Background()
	cache := redis.NewAccountCache(c, time.Minute)
	addr := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	_, err := cache.Get(ctx, addr)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, cache.Set(ctx, domain.Account{Address: addr, Owner: owner, Data: []byte("v2"), Version: 2}))
	require.NoError(t, cache.Set(ctx, domain.Account{Address: addr, Owner: owner, Data: []byte("v1"), Version: 1}))

	got, err := cache.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, []byte("v2"), got.Data)
	assert.Equal(t, owner, got.Owner)

	require.NoError(t, cache.Invalidate(ctx, addr))
	_, err = cache.Get(ctx, addr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRateLimiter(t *testing.T) {
	c := connect(t)
	ctx := context.Background()
	rl := redis.NewRateLimiter(c)
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignalBusEvents(t *testing.T) {
	c := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus := redis.NewSignalBus(c)

	events, err := bus.SubscribeEvents(ctx)
	require.NoError(t, err)

	sig := uuid.NewString()
	require.NoError(t, bus.PublishEvent(ctx, domain.Event{Type: domain.EventPredictionCreated, Signature: sig, Slot: 3}))

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventPredictionCreated, ev.Type)
		assert.Equal(t, sig, ev.Signature)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}
