package ledger_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/crypto"
	"github.com/alanyoungcy/binaryoptions/internal/derive"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
	"github.com/alanyoungcy/binaryoptions/internal/store/memory"
)

var errBoom = errors.New("boom")

const (
	opCreate byte = iota + 1
	opSet
	opFail
	opEscalate
)

// kvProgram stores one uint64 per account.
type kvProgram struct{ id solana.PublicKey }

func (p *kvProgram) ID() solana.PublicKey { return p.id }

func (p *kvProgram) Process(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	switch data[0] {
	case opCreate:
		return ic.Create(accounts[0].PublicKey, data[1:], nil)
	case opSet:
		return ic.Store(accounts[0].PublicKey, data[1:])
	case opFail:
		return errBoom
	case opEscalate:
		metas := []*solana.AccountMeta{solana.NewAccountMeta(accounts[1].PublicKey, false, true)}
		return ic.Invoke(p.id, metas, []byte{opFail})
	}
	return errors.New("unknown op")
}

func value(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func kvInstruction(programID solana.PublicKey, op byte, account solana.PublicKey, signer bool, payload []byte) solana.Instruction {
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(account, true, signer),
	}, append([]byte{op}, payload...))
}

type fixture struct {
	ctx    context.Context
	store  domain.AccountStore
	ledger *ledger.Ledger
	kv     solana.PublicKey
	payer  solana.PrivateKey
}

func newFixture(t *testing.T, store domain.AccountStore, opts ledger.Options) *fixture {
	t.Helper()
	if store == nil {
		store = memory.NewAccountStore()
	}
	opts.HashSeed = []byte(t.Name())
	l := ledger.New(store, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	kv := derive.NamedID("kv")
	l.Register(&kvProgram{id: kv})

	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &fixture{ctx: context.Background(), store: store, ledger: l, kv: kv, payer: payer}
}

func (f *fixture) build(t *testing.T, ixs []solana.Instruction, cosigners ...solana.PrivateKey) *solana.Transaction {
	t.Helper()
	tx, err := crypto.BuildTransaction(f.ledger.RecentHash(), f.payer, ixs, cosigners...)
	require.NoError(t, err)
	return tx
}

func (f *fixture) newAccount(t *testing.T, v uint64) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	tx := f.build(t, []solana.Instruction{kvInstruction(f.kv, opCreate, key.PublicKey(), true, value(v))}, key)
	_, err = f.ledger.SubmitTransaction(f.ctx, tx)
	require.NoError(t, err)
	return key
}

func TestSubmitCommitsAndAdvancesHash(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{})
	before := f.ledger.RecentHash()

	key := f.newAccount(t, 7)

	acct, err := f.store.Get(f.ctx, key.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, value(7), acct.Data)
	assert.Equal(t, f.kv, acct.Owner)
	assert.Equal(t, uint64(1), acct.Version)
	assert.NotEqual(t, before, f.ledger.RecentHash())
	assert.Equal(t, uint64(1), f.ledger.Slot())
}

func TestReplayIsRejected(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{})
	key := f.newAccount(t, 1)

	tx := f.build(t, []solana.Instruction{kvInstruction(f.kv, opSet, key.PublicKey(), false, value(2))})
	raw, err := ledger.EncodeTransaction(tx)
	require.NoError(t, err)

	_, err = f.ledger.Submit(f.ctx, raw)
	require.NoError(t, err)
	_, err = f.ledger.Submit(f.ctx, raw)
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
}

func TestUnknownRecentHashIsRejected(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{})
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	tx, err := crypto.BuildTransaction(solana.Hash{9}, f.payer,
		[]solana.Instruction{kvInstruction(f.kv, opCreate, key.PublicKey(), true, value(1))}, key)
	require.NoError(t, err)

	_, err = f.ledger.SubmitTransaction(f.ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrBlockhashNotFound)
}

func TestHashWindowExpiresOldHashes(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{RecentHashWindow: 2})
	key := f.newAccount(t, 1)

	stale := f.build(t, []solana.Instruction{kvInstruction(f.kv, opSet, key.PublicKey(), false, value(5))})
	for i := 0; i < 2; i++ {
		tx := f.build(t, []solana.Instruction{kvInstruction(f.kv, opSet, key.PublicKey(), false, value(uint64(10+i)))})
		_, err := f.ledger.SubmitTransaction(f.ctx, tx)
		require.NoError(t, err)
	}

	_, err := f.ledger.SubmitTransaction(f.ctx, stale)
	assert.ErrorIs(t, err, ledger.ErrBlockhashNotFound)
}

func TestTamperedSignatureIsRejected(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{})
	key := f.newAccount(t, 1)

	tx := f.build(t, []solana.Instruction{kvInstruction(f.kv, opSet, key.PublicKey(), false, value(2))})
	tx.Signatures[0][0] ^= 0xff

	_, err := f.ledger.SubmitTransaction(f.ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrInvalidSignature)
}

func TestFailedInstructionRollsBackWholeTransaction(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{})
	key := f.newAccount(t, 1)
	fresh, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	tx := f.build(t, []solana.Instruction{
		kvInstruction(f.kv, opSet, key.PublicKey(), false, value(99)),
		kvInstruction(f.kv, opCreate, fresh.PublicKey(), true, value(1)),
		kvInstruction(f.kv, opFail, key.PublicKey(), false, nil),
	}, fresh)

	_, err = f.ledger.SubmitTransaction(f.ctx, tx)
	var ie *ledger.InstructionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 2, ie.Index)
	assert.ErrorIs(t, err, errBoom)

	acct, err := f.store.Get(f.ctx, key.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, value(1), acct.Data)
	_, err = f.store.Get(f.ctx, fresh.PublicKey())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateRequiresSignatureOrSeeds(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{})
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	tx := f.build(t, []solana.Instruction{kvInstruction(f.kv, opCreate, key.PublicKey(), false, value(1))})
	_, err = f.ledger.SubmitTransaction(f.ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrMissingSigner)
}

func TestCrossProgramCallCannotForgeSigner(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{})
	key := f.newAccount(t, 1)
	victim := solana.NewWallet().PublicKey()

	ix := solana.NewInstruction(f.kv, solana.AccountMetaSlice{
		solana.NewAccountMeta(key.PublicKey(), true, false),
		solana.NewAccountMeta(victim, false, false),
	}, []byte{opEscalate})

	_, err := f.ledger.SubmitTransaction(f.ctx, f.build(t, []solana.Instruction{ix}))
	assert.ErrorIs(t, err, ledger.ErrPrivilegeEscalation)
}

func TestProgramCannotWriteForeignAccount(t *testing.T) {
	f := newFixture(t, nil, ledger.Options{})
	other := derive.NamedID("other-kv")
	f.ledger.Register(&kvProgram{id: other})
	key := f.newAccount(t, 1)

	ix := kvInstruction(other, opSet, key.PublicKey(), false, value(3))
	_, err := f.ledger.SubmitTransaction(f.ctx, f.build(t, []solana.Instruction{ix}))
	assert.ErrorIs(t, err, ledger.ErrAccountNotOwned)
}

// conflictOnce fails the first commit it sees with ErrConflict.
type conflictOnce struct {
	domain.AccountStore
	armed   atomic.Bool
	commits atomic.Int32
}

func (s *conflictOnce) Commit(ctx context.Context, writes []domain.AccountWrite) error {
	s.commits.Add(1)
	if s.armed.CompareAndSwap(true, false) {
		return domain.ErrConflict
	}
	return s.AccountStore.Commit(ctx, writes)
}

func TestCommitConflictIsRetried(t *testing.T) {
	store := &conflictOnce{AccountStore: memory.NewAccountStore()}
	f := newFixture(t, store, ledger.Options{})
	key := f.newAccount(t, 1)

	store.armed.Store(true)
	store.commits.Store(0)
	tx := f.build(t, []solana.Instruction{kvInstruction(f.kv, opSet, key.PublicKey(), false, value(4))})
	_, err := f.ledger.SubmitTransaction(f.ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.commits.Load())

	acct, err := store.Get(f.ctx, key.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, value(4), acct.Data)
	assert.Equal(t, uint64(2), acct.Version)
}

type recordingPublisher struct{ events []domain.Event }

func (p *recordingPublisher) PublishEvent(_ context.Context, ev domain.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func TestEventsPublishedOnlyAfterCommit(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, nil, ledger.Options{Publisher: pub})
	f.newAccount(t, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventTransactionConfirmed, pub.events[0].Type)

	tx := f.build(t, []solana.Instruction{kvInstruction(f.kv, opFail, solana.NewWallet().PublicKey(), false, nil)})
	_, err := f.ledger.SubmitTransaction(f.ctx, tx)
	require.Error(t, err)
	assert.Len(t, pub.events, 1)
}

func TestManualClock(t *testing.T) {
	c := ledger.NewManualClock(time.Unix(1000, 0))
	c.Advance(time.Second)
	assert.Equal(t, int64(1001), c.Now().Unix())
	c.Set(time.Unix(5, 0))
	assert.Equal(t, int64(5), c.Now().Unix())
}
