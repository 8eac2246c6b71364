package program_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/crypto"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
	"github.com/alanyoungcy/binaryoptions/internal/program"
	"github.com/alanyoungcy/binaryoptions/internal/store/memory"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     *memory.AccountStore
	clock     *ledger.ManualClock
	ledger    *ledger.Ledger
	programID solana.PublicKey
	admin     solana.PrivateKey
	mint      solana.PublicKey
	addrs     program.Addresses
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

// newHarness boots a ledger with the token and options programs and an asset
// mint controlled by the admin. The market is not initialized yet.
func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewAccountStore()
	clock := ledger.NewManualClock(time.Unix(1000, 0))
	l := ledger.New(store, ledger.Options{Clock: clock, HashSeed: []byte(t.Name())},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	l.Register(token.NewProgram())
	prog, err := program.NewProgram(program.DefaultProgramID)
	require.NoError(t, err)
	l.Register(prog)

	h := &harness{
		t:         t,
		ctx:       context.Background(),
		store:     store,
		clock:     clock,
		ledger:    l,
		programID: program.DefaultProgramID,
		admin:     newKey(t),
	}
	mint := newKey(t)
	h.mint = mint.PublicKey()
	h.mustSubmit(h.admin, []solana.Instruction{
		token.NewInitializeMintInstruction(h.mint, h.admin.PublicKey(), 6),
	}, mint)

	h.addrs, err = program.MarketAddresses(h.programID, h.mint)
	require.NoError(t, err)
	return h
}

func (h *harness) submit(payer solana.PrivateKey, ixs []solana.Instruction, cosigners ...solana.PrivateKey) (*ledger.Receipt, error) {
	h.t.Helper()
	tx, err := crypto.BuildTransaction(h.ledger.RecentHash(), payer, ixs, cosigners...)
	require.NoError(h.t, err)
	return h.ledger.SubmitTransaction(h.ctx, tx)
}

func (h *harness) mustSubmit(payer solana.PrivateKey, ixs []solana.Instruction, cosigners ...solana.PrivateKey) *ledger.Receipt {
	h.t.Helper()
	rcpt, err := h.submit(payer, ixs, cosigners...)
	require.NoError(h.t, err)
	return rcpt
}

func (h *harness) initialize() {
	h.t.Helper()
	ix, err := program.NewInitializeInstruction(h.programID, h.admin.PublicKey(), h.mint)
	require.NoError(h.t, err)
	h.mustSubmit(h.admin, []solana.Instruction{ix})
}

func (h *harness) setFeeRate(rate uint64) error {
	h.t.Helper()
	ix, err := program.NewSetFeeRateInstruction(h.programID, h.admin.PublicKey(), rate)
	require.NoError(h.t, err)
	_, err = h.submit(h.admin, []solana.Instruction{ix})
	return err
}

// fund opens owner's token account and mints amount into it.
func (h *harness) fund(owner solana.PublicKey, amount uint64) solana.PublicKey {
	h.t.Helper()
	ata, err := token.AssociatedAddress(owner, h.mint)
	require.NoError(h.t, err)
	ixs := []solana.Instruction{token.NewInitializeAccountInstruction(h.admin.PublicKey(), ata, owner, h.mint)}
	if amount > 0 {
		ixs = append(ixs, token.NewMintToInstruction(h.mint, ata, h.admin.PublicKey(), amount))
	}
	h.mustSubmit(h.admin, ixs)
	return ata
}

func (h *harness) config() program.GlobalConfig {
	h.t.Helper()
	acct, err := h.store.Get(h.ctx, h.addrs.Config)
	require.NoError(h.t, err)
	cfg, err := program.DecodeConfig(h.programID, acct)
	require.NoError(h.t, err)
	return cfg
}

func (h *harness) balance(addr solana.PublicKey) uint64 {
	h.t.Helper()
	acct, err := h.store.Get(h.ctx, addr)
	require.NoError(h.t, err)
	ta, err := token.DecodeAccount(acct)
	require.NoError(h.t, err)
	return ta.Amount
}

func (h *harness) prediction(id uint64) program.PredictionRecord {
	h.t.Helper()
	addr, _, err := program.PredictionAddress(h.programID, id)
	require.NoError(h.t, err)
	acct, err := h.store.Get(h.ctx, addr)
	require.NoError(h.t, err)
	rec, err := program.DecodePrediction(h.programID, acct)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) upArgs(amount uint64) program.CreatePredictionArgs {
	return program.CreatePredictionArgs{
		Amount:          amount,
		TokenMint:       h.mint,
		StartTimestamp:  1000,
		ExpiryTimestamp: 2000,
		StartPrice:      100,
		PredictionType:  program.PredictionUp,
	}
}

func (h *harness) create(trader solana.PrivateKey, traderToken solana.PublicKey, args program.CreatePredictionArgs) (uint64, error) {
	h.t.Helper()
	id := h.config().PredictionCounter
	ix, err := program.NewCreatePredictionInstruction(h.programID, trader.PublicKey(), traderToken, id, args)
	require.NoError(h.t, err)
	_, err = h.submit(trader, []solana.Instruction{ix})
	return id, err
}

func (h *harness) settle(signer solana.PrivateKey, id, endPrice uint64, receive solana.PublicKey) (*ledger.Receipt, error) {
	h.t.Helper()
	ix, err := program.NewSettlePredictionInstruction(h.programID, signer.PublicKey(), h.mint, receive,
		program.SettlePredictionArgs{PredictionID: id, EndPrice: endPrice})
	require.NoError(h.t, err)
	return h.submit(signer, []solana.Instruction{ix})
}

func (h *harness) withdraw(amount uint64, destination solana.PublicKey) error {
	h.t.Helper()
	ix, err := program.NewWithdrawFeesInstruction(h.programID, h.admin.PublicKey(), h.mint, destination, amount)
	require.NoError(h.t, err)
	_, err = h.submit(h.admin, []solana.Instruction{ix})
	return err
}
