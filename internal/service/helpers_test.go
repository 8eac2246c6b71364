package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/crypto"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
	"github.com/alanyoungcy/binaryoptions/internal/program"
	"github.com/alanyoungcy/binaryoptions/internal/service"
	"github.com/alanyoungcy/binaryoptions/internal/store/memory"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type env struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.AccountStore
	clock   *ledger.ManualClock
	ledger  *ledger.Ledger
	signer  *crypto.Signer
	markets *service.MarketService
	market  service.BootstrapResult
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

// newEnv boots a ledger and a bootstrapped market with a 5% fee.
func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewAccountStore()
	clock := ledger.NewManualClock(time.Unix(1000, 0))
	l := ledger.New(store, ledger.Options{Clock: clock, HashSeed: []byte(t.Name())}, discard())
	l.Register(token.NewProgram())
	prog, err := program.NewProgram(program.DefaultProgramID)
	require.NoError(t, err)
	l.Register(prog)

	e := &env{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		clock:  clock,
		ledger: l,
		signer: crypto.NewSigner(newKey(t)),
	}
	e.markets, err = service.NewMarketService(store, nil, program.DefaultProgramID, discard())
	require.NoError(t, err)

	boot := service.NewBootstrapService(l, e.signer, program.DefaultProgramID, discard())
	e.market, err = boot.Bootstrap(e.ctx, service.BootstrapParams{Decimals: 6, FeeRatePercent: 5})
	require.NoError(t, err)
	return e
}

func (e *env) submit(payer solana.PrivateKey, ixs ...solana.Instruction) {
	e.t.Helper()
	tx, err := crypto.BuildTransaction(e.ledger.RecentHash(), payer, ixs)
	require.NoError(e.t, err)
	_, err = e.ledger.SubmitTransaction(e.ctx, tx)
	require.NoError(e.t, err)
}

// trader opens a funded token account for a new trader.
func (e *env) trader(amount uint64) (solana.PrivateKey, solana.PublicKey) {
	e.t.Helper()
	k := newKey(e.t)
	ata, err := token.AssociatedAddress(k.PublicKey(), e.market.AssetMint)
	require.NoError(e.t, err)
	e.submit(e.signer.PrivateKey(),
		token.NewInitializeAccountInstruction(e.signer.PublicKey(), ata, k.PublicKey(), e.market.AssetMint),
		token.NewMintToInstruction(e.market.AssetMint, ata, e.signer.PublicKey(), amount),
	)
	return k, ata
}

func (e *env) create(trader solana.PrivateKey, ata solana.PublicKey, amount uint64, expiry int64, dir program.PredictionType) uint64 {
	e.t.Helper()
	cfg, err := e.markets.Config(e.ctx)
	require.NoError(e.t, err)
	id := cfg.PredictionCounter
	ix, err := program.NewCreatePredictionInstruction(program.DefaultProgramID, trader.PublicKey(), ata, id,
		program.CreatePredictionArgs{
			Amount:          amount,
			TokenMint:       e.market.AssetMint,
			StartTimestamp:  1000,
			ExpiryTimestamp: expiry,
			StartPrice:      100,
			PredictionType:  dir,
		})
	require.NoError(e.t, err)
	e.submit(trader, ix)
	return id
}

func (e *env) settle(id, endPrice uint64, receive solana.PublicKey) {
	e.t.Helper()
	ix, err := program.NewSettlePredictionInstruction(program.DefaultProgramID, e.signer.PublicKey(), e.market.AssetMint, receive,
		program.SettlePredictionArgs{PredictionID: id, EndPrice: endPrice})
	require.NoError(e.t, err)
	e.submit(e.signer.PrivateKey(), ix)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *eventRecorder) PublishEvent(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func cryptoSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	return crypto.NewSigner(newKey(t))
}
