package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/service"
)

// MarketHandler serves the market configuration and predictions.
type MarketHandler struct {
	markets *service.MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets *service.MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logHandler(logger, "market")}
}

type configResponse struct {
	domain.MarketConfig
	ProtocolBalance uint64 `json:"protocol_balance"`
}

// GetConfig returns the market configuration.
// GET /api/config
func (h *MarketHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.markets.Config(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market is not initialized")
			return
		}
		h.logger.ErrorContext(r.Context(), "get config failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load market config")
		return
	}
	writeJSON(w, http.StatusOK, configResponse{MarketConfig: cfg, ProtocolBalance: cfg.ProtocolBalance()})
}

type predictionResponse struct {
	domain.Prediction
	Status string `json:"status"`
}

func toResponse(p domain.Prediction) predictionResponse {
	return predictionResponse{Prediction: p, Status: p.Status()}
}

// ListPredictions returns predictions in id order.
// GET /api/predictions?status=open|settled&trader=<address>&limit=&offset=
func (h *MarketHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()

	f := service.PredictionFilter{Limit: limit, Offset: offset}
	switch status := q.Get("status"); status {
	case service.StatusAll, service.StatusOpen, service.StatusSettled:
		f.Status = status
	default:
		writeError(w, http.StatusBadRequest, "status must be open or settled")
		return
	}
	if v := q.Get("trader"); v != "" {
		trader, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "trader is not a valid base58 public key")
			return
		}
		f.Trader = trader
	}

	preds, err := h.markets.ListPredictions(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list predictions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}
	out := make([]predictionResponse, 0, len(preds))
	for _, p := range preds {
		out = append(out, toResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": out,
		"count":       len(out),
		"limit":       f.Limit,
		"offset":      f.Offset,
	})
}

// GetPrediction returns one prediction.
// GET /api/predictions/{id}
func (h *MarketHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an unsigned integer")
		return
	}
	p, err := h.markets.Prediction(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prediction not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get prediction failed",
			slog.Uint64("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load prediction")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}
