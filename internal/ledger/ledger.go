// Package ledger is the host that runs on-ledger programs. It verifies signed
// transactions, executes their instructions against a staged view of account
// state and commits every write atomically, or none of them.
//
// Transactions are serialized within a host. Hosts sharing a store are kept
// consistent by version-checked commits: a commit that loses a race re-runs
// the whole transaction against fresh state. An optional LockManager narrows
// those races to disjoint account sets.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// Options configures a Ledger. Zero values select defaults; nil collaborators
// are skipped.
type Options struct {
	Clock            Clock
	HashSeed         []byte
	RecentHashWindow int
	MaxCommitRetries int
	LockTTL          time.Duration
	LockWait         time.Duration

	Locks     domain.LockManager
	Publisher domain.EventPublisher
	Cache     domain.AccountCache
	Audit     domain.AuditStore
	Metrics   *Metrics
}

// Receipt describes a committed transaction.
type Receipt struct {
	Signature  solana.Signature
	Slot       uint64
	RecentHash solana.Hash
	Events     []domain.Event
	Logs       []string
}

// Ledger executes transactions for a set of registered programs.
type Ledger struct {
	store  domain.AccountStore
	opts   Options
	clock  Clock
	hashes *HashChain
	dedup  *Dedup
	logger *slog.Logger

	progMu   sync.RWMutex
	programs map[solana.PublicKey]Program

	mu   sync.Mutex
	slot uint64
}

// New creates a Ledger over store.
func New(store domain.AccountStore, opts Options, logger *slog.Logger) *Ledger {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.RecentHashWindow <= 0 {
		opts.RecentHashWindow = 150
	}
	if opts.MaxCommitRetries < 0 {
		opts.MaxCommitRetries = 0
	} else if opts.MaxCommitRetries == 0 {
		opts.MaxCommitRetries = 5
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	if len(opts.HashSeed) == 0 {
		opts.HashSeed = []byte(time.Now().UTC().Format(time.RFC3339Nano))
	}
	return &Ledger{
		store:    store,
		opts:     opts,
		clock:    opts.Clock,
		hashes:   NewHashChain(opts.HashSeed, opts.RecentHashWindow),
		dedup:    NewDedup(),
		logger:   logger.With(slog.String("component", "ledger")),
		programs: make(map[solana.PublicKey]Program),
	}
}

// Register installs a program under its id.
func (l *Ledger) Register(p Program) {
	l.progMu.Lock()
	defer l.progMu.Unlock()
	l.programs[p.ID()] = p
}

func (l *Ledger) program(id solana.PublicKey) (Program, bool) {
	l.progMu.RLock()
	defer l.progMu.RUnlock()
	p, ok := l.programs[id]
	return p, ok
}

// RecentHash returns the hash new transactions should reference.
func (l *Ledger) RecentHash() solana.Hash { return l.hashes.Latest() }

// Clock returns the clock programs observe.
func (l *Ledger) Clock() Clock { return l.clock }

// Slot returns the number of transactions this host has committed.
func (l *Ledger) Slot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

// Account reads committed account state.
func (l *Ledger) Account(ctx context.Context, addr solana.PublicKey) (domain.Account, error) {
	return l.store.Get(ctx, addr)
}

// Submit decodes and processes a wire-format transaction.
func (l *Ledger) Submit(ctx context.Context, raw []byte) (*Receipt, error) {
	tx, err := DecodeTransaction(raw)
	if err != nil {
		l.opts.Metrics.observe("rejected", 0)
		return nil, err
	}
	return l.SubmitTransaction(ctx, tx)
}

// SubmitTransaction processes a decoded transaction.
func (l *Ledger) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (*Receipt, error) {
	start := time.Now()
	rcpt, err := l.process(ctx, tx)
	if err != nil {
		l.opts.Metrics.observe(resultLabel(err), time.Since(start))
		l.logger.WarnContext(ctx, "ledger: transaction rejected",
			slog.String("signature", firstSignature(tx)),
			slog.String("error", err.Error()),
		)
		l.audit(ctx, domain.EventTransactionFailed, map[string]any{
			"signature": firstSignature(tx),
			"error":     err.Error(),
		})
		return nil, err
	}
	l.opts.Metrics.observe("committed", time.Since(start))
	return rcpt, nil
}

func (l *Ledger) process(ctx context.Context, tx *solana.Transaction) (*Receipt, error) {
	if err := verifyTransaction(tx); err != nil {
		return nil, err
	}
	sig := tx.Signatures[0]
	hash := tx.Message.RecentBlockhash

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hashes.Contains(hash) {
		return nil, fmt.Errorf("%w: %s", ErrBlockhashNotFound, hash)
	}
	if l.dedup.IsDuplicate(hash, sig) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, sig)
	}

	signers, writable := accountFlags(&tx.Message)
	unlock, err := l.lockAccounts(ctx, writable)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var exe *execution
	for attempt := 0; ; attempt++ {
		exe, err = l.execute(ctx, &tx.Message, signers, writable)
		if err != nil {
			return nil, err
		}
		err = l.store.Commit(ctx, exe.ov.writes(exe.now))
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrConflict) && attempt < l.opts.MaxCommitRetries {
			l.opts.Metrics.conflict()
			l.logger.DebugContext(ctx, "ledger: commit conflict, retrying",
				slog.String("signature", sig.String()),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}

	l.slot++
	l.opts.Metrics.setSlot(l.slot)
	l.dedup.Record(hash, sig)
	next, evicted := l.hashes.Advance(sig[:])
	l.dedup.Evict(evicted...)

	rcpt := &Receipt{
		Signature:  sig,
		Slot:       l.slot,
		RecentHash: next,
		Logs:       exe.logs,
	}
	for _, ev := range exe.events {
		ev.Signature = sig.String()
		ev.Slot = l.slot
		rcpt.Events = append(rcpt.Events, ev)
	}
	confirmed := domain.Event{
		Type:      domain.EventTransactionConfirmed,
		Signature: sig.String(),
		Slot:      l.slot,
		Time:      exe.now,
	}

	l.afterCommit(ctx, exe, append(rcpt.Events, confirmed))

	l.logger.InfoContext(ctx, "ledger: transaction committed",
		slog.String("signature", sig.String()),
		slog.Uint64("slot", l.slot),
		slog.Int("writes", len(exe.ov.order)),
		slog.Int("events", len(rcpt.Events)),
	)
	return rcpt, nil
}

// execute runs every instruction of msg against a fresh overlay.
func (l *Ledger) execute(ctx context.Context, msg *solana.Message, signers, writable map[solana.PublicKey]bool) (*execution, error) {
	exe := &execution{
		ledger: l,
		ov:     newOverlay(ctx, l.store),
		now:    l.clock.Now(),
	}
	for i, ci := range msg.Instructions {
		programID := msg.AccountKeys[ci.ProgramIDIndex]
		metas := make([]*solana.AccountMeta, len(ci.Accounts))
		for j, idx := range ci.Accounts {
			key := msg.AccountKeys[idx]
			metas[j] = solana.NewAccountMeta(key, writable[key], signers[key])
		}
		if err := exe.invoke(programID, metas, ci.Data, 0); err != nil {
			return nil, &InstructionError{Index: i, Err: err}
		}
	}
	return exe, nil
}

// lockAccounts takes the distributed lock of every writable account in a
// fixed order. It is a no-op without a LockManager.
func (l *Ledger) lockAccounts(ctx context.Context, writable map[solana.PublicKey]bool) (func(), error) {
	if l.opts.Locks == nil {
		return func() {}, nil
	}
	keys := make([]string, 0, len(writable))
	for k, w := range writable {
		if w {
			keys = append(keys, "ledger:account:"+k.String())
		}
	}
	sort.Strings(keys)

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.LockWait)
	defer cancel()

	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range keys {
		unlock, err := l.acquire(waitCtx, key)
		if err != nil {
			release()
			return nil, fmt.Errorf("ledger: lock %s: %w", key, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (l *Ledger) acquire(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		unlock, err := l.opts.Locks.Acquire(ctx, key, l.opts.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// afterCommit fans committed state out to the cache, the event sink and the
// audit log. Failures are logged and never undo the commit.
func (l *Ledger) afterCommit(ctx context.Context, exe *execution, events []domain.Event) {
	if l.opts.Cache != nil {
		for _, w := range exe.ov.writes(exe.now) {
			if err := l.opts.Cache.Set(ctx, w.Account); err != nil {
				l.logger.WarnContext(ctx, "ledger: cache account",
					slog.String("address", w.Account.Address.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if l.opts.Publisher != nil {
		for _, ev := range events {
			if err := l.opts.Publisher.PublishEvent(ctx, ev); err != nil {
				l.logger.WarnContext(ctx, "ledger: publish event",
					slog.String("type", ev.Type),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	for _, ev := range events {
		if ev.Type == domain.EventTransactionConfirmed {
			continue
		}
		l.audit(ctx, ev.Type, map[string]any{
			"signature": ev.Signature,
			"slot":      ev.Slot,
			"payload":   string(ev.Payload),
		})
	}
}

func (l *Ledger) audit(ctx context.Context, event string, detail map[string]any) {
	if l.opts.Audit == nil {
		return
	}
	if err := l.opts.Audit.Log(ctx, event, detail); err != nil {
		l.logger.WarnContext(ctx, "ledger: audit log",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func firstSignature(tx *solana.Transaction) string {
	if tx == nil || len(tx.Signatures) == 0 {
		return ""
	}
	return tx.Signatures[0].String()
}

func resultLabel(err error) string {
	var ie *InstructionError
	switch {
	case errors.As(err, &ie):
		return "failed"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "rejected"
	}
}
