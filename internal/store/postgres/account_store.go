package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore backed by the given connection
// pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// scanAccount scans a single account row into a domain.Account.
func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a              domain.Account
		address, owner string
		version        int64
	)
	if err := row.Scan(&address, &owner, &a.Data, &version, &a.UpdatedAt); err != nil {
		return a, err
	}
	var err error
	if a.Address, err = solana.PublicKeyFromBase58(address); err != nil {
		return a, fmt.Errorf("postgres: bad address %q: %w", address, err)
	}
	if a.Owner, err = solana.PublicKeyFromBase58(owner); err != nil {
		return a, fmt.Errorf("postgres: bad owner %q: %w", owner, err)
	}
	a.Version = uint64(version)
	return a, nil
}

// Get returns the account at address.
func (s *AccountStore) Get(ctx context.Context, address solana.PublicKey) (domain.Account, error) {
	const query = `SELECT address, owner, data, version, updated_at FROM accounts WHERE address = $1`
	a, err := scanAccount(s.pool.QueryRow(ctx, query, address.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("postgres: account %s: %w", address, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", address, err)
	}
	return a, nil
}

// Commit applies writes in one transaction. Each write is conditioned on the
// stored version, so a host that lost a race gets domain.ErrConflict and
// nothing is applied.
func (s *AccountStore) Commit(ctx context.Context, writes []domain.AccountWrite) error {
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `
		INSERT INTO accounts (address, owner, tag, data, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO NOTHING`
	const update = `
		UPDATE accounts
		SET owner = $2, tag = $3, data = $4, version = $5, updated_at = $6
		WHERE address = $1 AND version = $7`

	batch := &pgx.Batch{}
	for _, w := range writes {
		a := w.Account
		tag := a.Tag()
		if tag == nil {
			tag = []byte{}
		}
		data := a.Data
		if data == nil {
			data = []byte{}
		}
		if w.ExpectedVersion == 0 {
			batch.Queue(insert, a.Address.String(), a.Owner.String(), tag, data, int64(a.Version), a.UpdatedAt)
		} else {
			batch.Queue(update, a.Address.String(), a.Owner.String(), tag, data, int64(a.Version), a.UpdatedAt, int64(w.ExpectedVersion))
		}
	}

	br := tx.SendBatch(ctx, batch)
	for _, w := range writes {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return fmt.Errorf("postgres: write account %s: %w", w.Account.Address, err)
		}
		if tag.RowsAffected() == 0 {
			br.Close()
			return fmt.Errorf("postgres: account %s changed since version %d: %w",
				w.Account.Address, w.ExpectedVersion, domain.ErrConflict)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close commit batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// ListByOwner returns accounts owned by owner whose payload starts with tag,
// in creation order.
func (s *AccountStore) ListByOwner(ctx context.Context, owner solana.PublicKey, tag []byte, opts domain.ListOpts) ([]domain.Account, error) {
	query := `SELECT address, owner, data, version, updated_at FROM accounts WHERE owner = $1`
	args := []any{owner.String()}
	argIdx := 2

	if len(tag) > 0 {
		query += fmt.Sprintf(" AND tag = $%d", argIdx)
		args = append(args, tag)
		argIdx++
	}
	query += " ORDER BY seq"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts of %s: %w", owner, err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts rows: %w", err)
	}
	return out, nil
}

// Close is a no-op; the Client owns the pool.
func (s *AccountStore) Close() error { return nil }
