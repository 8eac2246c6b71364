package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/program"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

// AccountReader reads committed accounts, through the cache when present.
type AccountReader interface {
	Account(ctx context.Context, addr solana.PublicKey) (domain.Account, error)
	ProgramID() solana.PublicKey
}

// AccountHandler serves raw and decoded account state.
type AccountHandler struct {
	accounts AccountReader
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountReader, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logHandler(logger, "accounts")}
}

type accountResponse struct {
	Address   string    `json:"address"`
	Owner     string    `json:"owner"`
	Version   uint64    `json:"version"`
	Data      string    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
	Kind      string    `json:"kind,omitempty"`
	Decoded   any       `json:"decoded,omitempty"`
}

// GetAccount returns one account with its payload in base64 and, for known
// record kinds, decoded.
// GET /api/accounts/{address}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := solana.PublicKeyFromBase58(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "address is not a valid base58 public key")
		return
	}

	acct, err := h.accounts.Account(r.Context(), addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get account failed",
			slog.String("address", addr.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	resp := accountResponse{
		Address:   acct.Address.String(),
		Owner:     acct.Owner.String(),
		Version:   acct.Version,
		Data:      base64.StdEncoding.EncodeToString(acct.Data),
		UpdatedAt: acct.UpdatedAt,
	}
	resp.Kind, resp.Decoded = decodeAccount(h.accounts.ProgramID(), acct)
	writeJSON(w, http.StatusOK, resp)
}

func decodeAccount(programID solana.PublicKey, acct domain.Account) (string, any) {
	if ta, err := token.DecodeAccount(acct); err == nil {
		return "token_account", map[string]any{
			"mint":   ta.Mint.String(),
			"owner":  ta.Owner.String(),
			"amount": ta.Amount,
		}
	}
	if m, err := token.DecodeMint(acct); err == nil {
		return "mint", map[string]any{
			"authority": m.Authority.String(),
			"supply":    m.Supply,
			"decimals":  m.Decimals,
		}
	}
	if c, err := program.DecodeConfig(programID, acct); err == nil {
		return "config", map[string]any{
			"admin":              c.Admin.String(),
			"asset_mint":         c.AssetMint.String(),
			"vault":              c.Vault.String(),
			"total_balance":      c.TotalBalance,
			"fee_rate_percent":   c.FeeRatePercent,
			"prediction_counter": c.PredictionCounter,
		}
	}
	if p, err := program.DecodePrediction(programID, acct); err == nil {
		return "prediction", map[string]any{
			"id":               p.ID,
			"trader":           p.Trader.String(),
			"amount":           p.Amount,
			"start_timestamp":  p.StartTimestamp,
			"expiry_timestamp": p.ExpiryTimestamp,
			"start_price":      p.StartPrice,
			"end_price":        p.EndPrice,
			"direction":        p.PredictionType.String(),
			"settled":          p.IsSettled,
			"winning":          p.IsWinning,
		}
	}
	return "", nil
}
