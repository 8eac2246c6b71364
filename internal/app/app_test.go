package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/config"
	"github.com/alanyoungcy/binaryoptions/internal/program"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Ledger.Store = "memory"
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	cfg.Admin.PrivateKey = key.String()
	cfg.Admin.FeeRatePercent = 3
	return &cfg
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWire_MemoryStore(t *testing.T) {
	cfg := testConfig(t)
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, program.DefaultProgramID, deps.ProgramID)
	assert.NotNil(t, deps.Ledger)
	assert.NotNil(t, deps.Admin)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Archiver)
	// Without redis the hub receives local commits directly.
	assert.Equal(t, 1, deps.Events.Len())
}

func TestWire_BadProgramID(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.ProgramID = "not-base58!"
	_, _, err := Wire(context.Background(), cfg, discard())
	require.Error(t, err)
}

func TestBootstrapMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "bootstrap"
	a := New(cfg, discard())
	defer a.Close()

	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, a.BootstrapMode(context.Background(), deps))

	mc, err := deps.Markets.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), mc.FeeRatePercent)
	assert.Equal(t, deps.Admin.PublicKey().String(), mc.Admin)

	// A second run finds everything in place.
	require.NoError(t, a.BootstrapMode(context.Background(), deps))
}

func TestBootstrapMode_NoAdmin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Admin.PrivateKey = ""
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	err = New(cfg, discard()).BootstrapMode(context.Background(), deps)
	require.Error(t, err)
}

func TestArchiveModeRequiresStorage(t *testing.T) {
	cfg := testConfig(t)
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	err = New(cfg, discard()).ArchiveMode(context.Background(), deps)
	require.Error(t, err)
}
