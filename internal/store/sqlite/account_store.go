// Package sqlite implements the account and audit stores on an embedded
// SQLite database (pure Go, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    address    TEXT    NOT NULL UNIQUE,
    owner      TEXT    NOT NULL,
    tag        BLOB    NOT NULL,
    data       BLOB    NOT NULL,
    version    INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_owner_tag ON accounts(owner, tag, seq);

CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event      TEXT     NOT NULL,
    detail     TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
`

// DB is an open SQLite database holding both stores.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Accounts returns the account store.
func (d *DB) Accounts() *AccountStore { return &AccountStore{db: d.db} }

// Audit returns the audit store.
func (d *DB) Audit() *AuditStore { return &AuditStore{db: d.db} }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// AccountStore implements domain.AccountStore.
type AccountStore struct {
	db *sql.DB
}

var _ domain.AccountStore = (*AccountStore)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (domain.Account, error) {
	var (
		a              domain.Account
		address, owner string
		version        int64
		updatedAt      int64
	)
	if err := row.Scan(&address, &owner, &a.Data, &version, &updatedAt); err != nil {
		return a, err
	}
	a.UpdatedAt = time.Unix(0, updatedAt).UTC()
	var err error
	if a.Address, err = solana.PublicKeyFromBase58(address); err != nil {
		return a, fmt.Errorf("sqlite: bad address %q: %w", address, err)
	}
	if a.Owner, err = solana.PublicKeyFromBase58(owner); err != nil {
		return a, fmt.Errorf("sqlite: bad owner %q: %w", owner, err)
	}
	a.Version = uint64(version)
	return a, nil
}

// blob keeps NOT NULL columns satisfied for empty payloads.
func blob(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Get returns the account at address.
func (s *AccountStore) Get(ctx context.Context, address solana.PublicKey) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT address, owner, data, version, updated_at FROM accounts WHERE address = ?`,
		address.String(),
	)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("sqlite: account %s: %w", address, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("sqlite: get account %s: %w", address, err)
	}
	return a, nil
}

// Commit applies writes in one transaction. A version mismatch rolls back
// everything and returns domain.ErrConflict.
func (s *AccountStore) Commit(ctx context.Context, writes []domain.AccountWrite) error {
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin commit: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		a := w.Account
		var res sql.Result
		if w.ExpectedVersion == 0 {
			res, err = tx.ExecContext(ctx,
				`INSERT INTO accounts (address, owner, tag, data, version, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT(address) DO NOTHING`,
				a.Address.String(), a.Owner.String(), blob(a.Tag()), blob(a.Data), int64(a.Version), a.UpdatedAt.UnixNano(),
			)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE accounts SET owner = ?, tag = ?, data = ?, version = ?, updated_at = ?
				 WHERE address = ? AND version = ?`,
				a.Owner.String(), blob(a.Tag()), blob(a.Data), int64(a.Version), a.UpdatedAt.UnixNano(),
				a.Address.String(), int64(w.ExpectedVersion),
			)
		}
		if err != nil {
			return fmt.Errorf("sqlite: write account %s: %w", a.Address, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: write account %s: %w", a.Address, err)
		}
		if n == 0 {
			return fmt.Errorf("sqlite: account %s changed since version %d: %w",
				a.Address, w.ExpectedVersion, domain.ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// ListByOwner returns accounts owned by owner whose payload starts with tag,
// in creation order.
func (s *AccountStore) ListByOwner(ctx context.Context, owner solana.PublicKey, tag []byte, opts domain.ListOpts) ([]domain.Account, error) {
	query := `SELECT address, owner, data, version, updated_at FROM accounts WHERE owner = ?`
	args := []any{owner.String()}
	if len(tag) > 0 {
		query += ` AND tag = ?`
		args = append(args, tag)
	}
	query += ` ORDER BY seq`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list accounts of %s: %w", owner, err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list accounts rows: %w", err)
	}
	return out, nil
}

// Close is a no-op; the owning DB closes the connection.
func (s *AccountStore) Close() error { return nil }

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	db *sql.DB
}

var _ domain.AuditStore = (*AuditStore)(nil)

// Log appends an audit entry. detail is stored as JSON text.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(detailJSON), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`
	var args []any
	if opts.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, opts.Until.UnixNano())
	}
	query += ` ORDER BY id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e         domain.AuditEntry
			detail    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries rows: %w", err)
	}
	return entries, nil
}
