package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/store/postgres"
)

// connect needs a scratch database in OPTIONSD_TEST_POSTGRES_DSN.
func connect(t *testing.T) *postgres.Client {
	t.Helper()
	dsn := os.Getenv("OPTIONSD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OPTIONSD_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := postgres.New(ctx, postgres.ClientConfig{ConnString: dsn, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, c.RunMigrations(ctx))
	t.Cleanup(c.Close)
	return c
}

func TestAccountStoreVersionedCommit(t *testing.T) {
	c := connect(t)
	ctx := context.Background()
	s := c.Accounts()
	owner := solana.NewWallet().PublicKey()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.Commit(ctx, []domain.AccountWrite{
		{Account: domain.Account{Address: a, Owner: owner, Data: []byte("TAGTAG01a"), Version: 1, UpdatedAt: now}},
	}))

	err := s.Commit(ctx, []domain.AccountWrite{
		{Account: domain.Account{Address: b, Owner: owner, Data: []byte("TAGTAG01b"), Version: 1, UpdatedAt: now}},
		{Account: domain.Account{Address: a, Owner: owner, Data: []byte("TAGTAG01x"), Version: 2, UpdatedAt: now}, ExpectedVersion: 5},
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = s.Get(ctx, b)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Commit(ctx, []domain.AccountWrite{
		{Account: domain.Account{Address: a, Owner: owner, Data: []byte("TAGTAG01v2"), Version: 2, UpdatedAt: now}, ExpectedVersion: 1},
		{Account: domain.Account{Address: b, Owner: owner, Data: []byte("TAGTAG01b"), Version: 1, UpdatedAt: now}},
	}))
	got, err := s.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, []byte("TAGTAG01v2"), got.Data)

	list, err := s.ListByOwner(ctx, owner, []byte("TAGTAG01"), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].Address)
	assert.Equal(t, b, list[1].Address)
}

func TestAuditStore(t *testing.T) {
	c := connect(t)
	ctx := context.Background()
	audit := c.Audit()

	event := "test_" + solana.NewWallet().PublicKey().String()
	require.NoError(t, audit.Log(ctx, event, map[string]any{"ok": true}))

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, event, entries[0].Event)
}
