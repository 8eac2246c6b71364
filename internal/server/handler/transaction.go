package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
	"github.com/alanyoungcy/binaryoptions/internal/program"
	"github.com/alanyoungcy/binaryoptions/internal/token"
)

const maxTransactionBody = 64 << 10

// TransactionHandler accepts signed transactions.
type TransactionHandler struct {
	ledger Ledger
	logger *slog.Logger
}

// NewTransactionHandler creates a TransactionHandler.
func NewTransactionHandler(l Ledger, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{ledger: l, logger: logHandler(logger, "transactions")}
}

type submitRequest struct {
	Transaction string `json:"transaction"`
}

type receiptResponse struct {
	Signature  string         `json:"signature"`
	Slot       uint64         `json:"slot"`
	RecentHash string         `json:"recent_hash"`
	Events     []domain.Event `json:"events"`
	Logs       []string       `json:"logs"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Code        uint32 `json:"code,omitempty"`
	Name        string `json:"name,omitempty"`
	Instruction *int   `json:"instruction,omitempty"`
}

// Submit processes one transaction. The body is either the raw wire bytes
// (Content-Type application/octet-stream) or JSON {"transaction": base64}.
// POST /api/transactions
func (h *TransactionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTransactionBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "transaction body too large")
		return
	}

	raw := body
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/octet-stream") {
		var req submitRequest
		if err := json.Unmarshal(body, &req); err != nil || req.Transaction == "" {
			writeError(w, http.StatusBadRequest, `body must be {"transaction": "<base64>"}`)
			return
		}
		raw, err = base64.StdEncoding.DecodeString(req.Transaction)
		if err != nil {
			writeError(w, http.StatusBadRequest, "transaction is not valid base64")
			return
		}
	}

	rcpt, err := h.ledger.Submit(r.Context(), raw)
	if err != nil {
		status, resp := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "submit transaction failed", slog.String("error", err.Error()))
		}
		writeJSON(w, status, resp)
		return
	}

	events := rcpt.Events
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, receiptResponse{
		Signature:  rcpt.Signature.String(),
		Slot:       rcpt.Slot,
		RecentHash: rcpt.RecentHash.String(),
		Events:     events,
		Logs:       rcpt.Logs,
	})
}

// classify maps a submission error to an HTTP status and a typed body.
func classify(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}

	var ixErr *ledger.InstructionError
	if errors.As(err, &ixErr) {
		idx := ixErr.Index
		resp.Instruction = &idx
	}

	var progErr *program.Error
	if errors.As(err, &progErr) {
		resp.Code = progErr.Code
		resp.Name = progErr.Name
		return http.StatusUnprocessableEntity, resp
	}

	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, resp
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrMintMismatch),
		errors.Is(err, token.ErrOwnerMismatch),
		errors.Is(err, token.ErrMissingSignature),
		errors.Is(err, token.ErrInvalidAccount),
		errors.Is(err, token.ErrInvalidInstruction),
		errors.Is(err, token.ErrOverflow):
		return http.StatusUnprocessableEntity, resp
	case ixErr != nil,
		errors.Is(err, ledger.ErrInvalidTransaction),
		errors.Is(err, ledger.ErrInvalidSignature),
		errors.Is(err, ledger.ErrBlockhashNotFound),
		errors.Is(err, ledger.ErrMissingSigner),
		errors.Is(err, ledger.ErrUnknownProgram):
		return http.StatusBadRequest, resp
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error"}
}
