package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// EventLog reads the durable event stream kept on the shared bus.
type EventLog interface {
	ReadEvents(ctx context.Context, afterID string, count int) ([]domain.StreamMessage, error)
}

// EventHandler lets clients catch up on events they missed while
// disconnected from /ws.
type EventHandler struct {
	log    EventLog
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(log EventLog, logger *slog.Logger) *EventHandler {
	return &EventHandler{log: log, logger: logHandler(logger, "events")}
}

type streamedEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns up to limit events appended after the given stream id.
// GET /api/events?after=<id>&limit=<n>
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	msgs, err := h.log.ReadEvents(r.Context(), after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read event stream", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	out := make([]streamedEvent, 0, len(msgs))
	next := after
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, streamedEvent{ID: m.ID, Event: m.Payload})
		next = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"next":   next,
	})
}
