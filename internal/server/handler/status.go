package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves host status and the hash new transactions reference.
type StatusHandler struct {
	mode      string
	ledger    Ledger
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, l Ledger) *StatusHandler {
	return &StatusHandler{mode: mode, ledger: l, startedAt: time.Now().UTC()}
}

// GetStatus responds with the run mode, slot and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"slot":           h.ledger.Slot(),
		"recent_hash":    h.ledger.RecentHash().String(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// RecentHash returns the hash to put in the next transaction.
// GET /api/recent-hash
func (h *StatusHandler) RecentHash(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"recent_hash": h.ledger.RecentHash().String(),
		"slot":        h.ledger.Slot(),
	})
}
