// Package memory provides an in-process AccountStore, used for single-host
// development and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

type entry struct {
	acct domain.Account
	seq  uint64
}

// AccountStore keeps accounts in a map guarded by a mutex.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]entry
	seq      uint64
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore returns an empty store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[solana.PublicKey]entry)}
}

// Get returns a copy of the account at address.
func (s *AccountStore) Get(_ context.Context, address solana.PublicKey) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.accounts[address]
	if !ok {
		return domain.Account{}, fmt.Errorf("memory: account %s: %w", address, domain.ErrNotFound)
	}
	return e.acct.Clone(), nil
}

// Commit applies all writes after checking every expected version.
func (s *AccountStore) Commit(_ context.Context, writes []domain.AccountWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		cur, ok := s.accounts[w.Account.Address]
		var version uint64
		if ok {
			version = cur.acct.Version
		}
		if version != w.ExpectedVersion {
			return fmt.Errorf("memory: account %s at version %d, expected %d: %w",
				w.Account.Address, version, w.ExpectedVersion, domain.ErrConflict)
		}
	}
	for _, w := range writes {
		e, ok := s.accounts[w.Account.Address]
		if !ok {
			s.seq++
			e.seq = s.seq
		}
		e.acct = w.Account.Clone()
		s.accounts[w.Account.Address] = e
	}
	return nil
}

// ListByOwner returns accounts owned by owner whose payload starts with tag,
// in creation order.
func (s *AccountStore) ListByOwner(_ context.Context, owner solana.PublicKey, tag []byte, opts domain.ListOpts) ([]domain.Account, error) {
	s.mu.RLock()
	matches := make([]entry, 0)
	for _, e := range s.accounts {
		if !e.acct.Owner.Equals(owner) {
			continue
		}
		if len(tag) > 0 && !bytes.Equal(e.acct.Tag(), tag) {
			continue
		}
		matches = append(matches, entry{acct: e.acct.Clone(), seq: e.seq})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })

	start := opts.Offset
	if start > len(matches) {
		start = len(matches)
	}
	end := len(matches)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	out := make([]domain.Account, 0, end-start)
	for _, e := range matches[start:end] {
		out = append(out, e.acct)
	}
	return out, nil
}

// Close is a no-op.
func (s *AccountStore) Close() error { return nil }
