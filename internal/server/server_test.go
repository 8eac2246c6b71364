package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/crypto"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
	"github.com/alanyoungcy/binaryoptions/internal/program"
	"github.com/alanyoungcy/binaryoptions/internal/server"
	"github.com/alanyoungcy/binaryoptions/internal/server/handler"
	"github.com/alanyoungcy/binaryoptions/internal/service"
	"github.com/alanyoungcy/binaryoptions/internal/store/memory"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

type fixture struct {
	t      *testing.T
	ledger *ledger.Ledger
	clock  *ledger.ManualClock
	admin  *crypto.Signer
	market service.BootstrapResult
	srv    *httptest.Server
}

func newFixture(t *testing.T, cfg server.Config) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewAccountStore()
	clock := ledger.NewManualClock(time.Unix(1000, 0))
	l := ledger.New(store, ledger.Options{Clock: clock, HashSeed: []byte(t.Name())}, logger)
	l.Register(token.NewProgram())
	prog, err := program.NewProgram(program.DefaultProgramID)
	require.NoError(t, err)
	l.Register(prog)

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	admin := crypto.NewSigner(key)
	market, err := service.NewBootstrapService(l, admin, program.DefaultProgramID, logger).
		Bootstrap(context.Background(), service.BootstrapParams{Decimals: 6, FeeRatePercent: 5})
	require.NoError(t, err)

	markets, err := service.NewMarketService(store, nil, program.DefaultProgramID, logger)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	h := server.NewHandler(cfg, server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"store": func(ctx context.Context) error { return nil },
		}, logger),
		Status:       handler.NewStatusHandler("server", l),
		Transactions: handler.NewTransactionHandler(l, logger),
		Accounts:     handler.NewAccountHandler(markets, logger),
		Markets:      handler.NewMarketHandler(markets, logger),
	}, server.Options{Gatherer: reg, Registerer: reg}, logger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &fixture{t: t, ledger: l, clock: clock, admin: admin, market: market, srv: srv}
}

// trader funds a fresh trader directly through the ledger.
func (f *fixture) trader(amount uint64) (solana.PrivateKey, solana.PublicKey) {
	f.t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(f.t, err)
	ata, err := token.AssociatedAddress(k.PublicKey(), f.market.AssetMint)
	require.NoError(f.t, err)
	tx, err := f.admin.SignTransaction(f.ledger.RecentHash(), []solana.Instruction{
		token.NewInitializeAccountInstruction(f.admin.PublicKey(), ata, k.PublicKey(), f.market.AssetMint),
		token.NewMintToInstruction(f.market.AssetMint, ata, f.admin.PublicKey(), amount),
	})
	require.NoError(f.t, err)
	_, err = f.ledger.SubmitTransaction(context.Background(), tx)
	require.NoError(f.t, err)
	return k, ata
}

func (f *fixture) recentHash() solana.Hash {
	f.t.Helper()
	var body struct {
		RecentHash string `json:"recent_hash"`
	}
	f.getJSON("/api/recent-hash", http.StatusOK, &body)
	h, err := solana.HashFromBase58(body.RecentHash)
	require.NoError(f.t, err)
	return h
}

func (f *fixture) encode(payer solana.PrivateKey, ix solana.Instruction) string {
	f.t.Helper()
	tx, err := crypto.BuildTransaction(f.recentHash(), payer, []solana.Instruction{ix})
	require.NoError(f.t, err)
	raw, err := ledger.EncodeTransaction(tx)
	require.NoError(f.t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func (f *fixture) post(encoded string, headers map[string]string) (*http.Response, map[string]any) {
	f.t.Helper()
	body, _ := json.Marshal(map[string]string{"transaction": encoded})
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/transactions", bytes.NewReader(body))
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (f *fixture) getJSON(path string, wantStatus int, v any) {
	f.t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	require.Equal(f.t, wantStatus, resp.StatusCode, path)
	if v != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(v))
	}
}

func (f *fixture) createIx(trader solana.PrivateKey, ata solana.PublicKey, id, amount uint64) solana.Instruction {
	f.t.Helper()
	ix, err := program.NewCreatePredictionInstruction(program.DefaultProgramID, trader.PublicKey(), ata, id,
		program.CreatePredictionArgs{
			Amount:          amount,
			TokenMint:       f.market.AssetMint,
			StartTimestamp:  1000,
			ExpiryTimestamp: 2000,
			StartPrice:      100,
			PredictionType:  program.PredictionUp,
		})
	require.NoError(f.t, err)
	return ix
}

func TestHealth(t *testing.T) {
	f := newFixture(t, server.Config{})
	var body map[string]any
	f.getJSON("/api/health", http.StatusOK, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestSubmitAndQuery(t *testing.T) {
	f := newFixture(t, server.Config{})
	trader, ata := f.trader(1000)

	resp, body := f.post(f.encode(trader, f.createIx(trader, ata, 1, 1000)), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	events := body["events"].([]any)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventPredictionCreated, events[0].(map[string]any)["type"])

	var list struct {
		Predictions []struct {
			ID     uint64 `json:"id"`
			Trader string `json:"trader"`
			Status string `json:"status"`
		} `json:"predictions"`
		Count int `json:"count"`
	}
	f.getJSON("/api/predictions?status=open", http.StatusOK, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, trader.PublicKey().String(), list.Predictions[0].Trader)
	assert.Equal(t, "open", list.Predictions[0].Status)

	var pred map[string]any
	f.getJSON("/api/predictions/1", http.StatusOK, &pred)
	assert.Equal(t, "up", pred["direction"])
	f.getJSON("/api/predictions/2", http.StatusNotFound, nil)
	f.getJSON("/api/predictions/abc", http.StatusBadRequest, nil)
	f.getJSON("/api/predictions?status=bogus", http.StatusBadRequest, nil)

	var cfg map[string]any
	f.getJSON("/api/config", http.StatusOK, &cfg)
	assert.EqualValues(t, 1000, cfg["total_balance"])
	assert.EqualValues(t, 1000, cfg["vault_balance"])
	assert.EqualValues(t, 0, cfg["protocol_balance"])
	assert.EqualValues(t, 2, cfg["prediction_counter"])

	var acct map[string]any
	f.getJSON("/api/accounts/"+f.market.Vault.String(), http.StatusOK, &acct)
	assert.Equal(t, "token_account", acct["kind"])
	assert.EqualValues(t, 1000, acct["decoded"].(map[string]any)["amount"])
	f.getJSON("/api/accounts/not-base58!", http.StatusBadRequest, nil)
}

func TestSubmitReportsProgramErrors(t *testing.T) {
	f := newFixture(t, server.Config{})
	trader, ata := f.trader(1000)
	resp, _ := f.post(f.encode(trader, f.createIx(trader, ata, 1, 100)), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ix, err := program.NewSettlePredictionInstruction(program.DefaultProgramID, f.admin.PublicKey(), f.market.AssetMint, ata,
		program.SettlePredictionArgs{PredictionID: 1, EndPrice: 120})
	require.NoError(t, err)
	resp, body := f.post(f.encode(f.admin.PrivateKey(), ix), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.EqualValues(t, program.ErrNotYetExpired.Code, body["code"])
	assert.Equal(t, "NotYetExpired", body["name"])
	assert.EqualValues(t, 0, body["instruction"])

	resp, body = f.post(f.encode(trader, f.createIx(trader, ata, 2, 0)), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "InvalidAmount", body["name"])
}

func TestSubmitRejectsReplay(t *testing.T) {
	f := newFixture(t, server.Config{})
	trader, ata := f.trader(1000)
	encoded := f.encode(trader, f.createIx(trader, ata, 1, 100))

	resp, _ := f.post(encoded, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.post(encoded, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubmitRejectsMalformedBodies(t *testing.T) {
	f := newFixture(t, server.Config{})

	resp, err := http.Post(f.srv.URL+"/api/transactions", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(f.srv.URL+"/api/transactions", "application/octet-stream", strings.NewReader("garbage"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWritesRequireAPIKey(t *testing.T) {
	f := newFixture(t, server.Config{APIKey: "secret"})
	trader, ata := f.trader(1000)
	encoded := f.encode(trader, f.createIx(trader, ata, 1, 100))

	resp, _ := f.post(encoded, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.post(encoded, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, server.Config{})
	f.getJSON("/api/health", http.StatusOK, nil)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `binaryoptions_http_requests_total{method="GET",route="GET /api/health",status="200"} 1`)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, server.Config{RateLimitRPS: 0.001, RateLimitBurst: 1})
	f.getJSON("/api/health", http.StatusOK, nil)
	f.getJSON("/api/health", http.StatusTooManyRequests, nil)
}
