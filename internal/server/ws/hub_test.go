package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

func TestFrameRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 123).UTC()
	ev := domain.Event{
		Type:      domain.EventPredictionCreated,
		Signature: "3xYz",
		Slot:      42,
		Payload:   json.RawMessage(`{"id":7}`),
		Time:      at,
	}
	got, err := DecodeEvent(EncodeEvent(ev))
	require.NoError(t, err)
	assert.Equal(t, ev.Type, got.Type)
	assert.Equal(t, ev.Signature, got.Signature)
	assert.Equal(t, ev.Slot, got.Slot)
	assert.Equal(t, []byte(ev.Payload), []byte(got.Payload))
	assert.True(t, at.Equal(got.Time))

	minimal, err := DecodeEvent(EncodeEvent(domain.Event{Type: "x"}))
	require.NoError(t, err)
	assert.Equal(t, "x", minimal.Type)
	assert.True(t, minimal.Time.IsZero())
}

func TestDecodeEventRejectsTruncatedFrame(t *testing.T) {
	frame := EncodeEvent(domain.Event{Type: domain.EventPredictionSettled, Signature: "sig"})
	_, err := DecodeEvent(frame[:len(frame)-1])
	assert.Error(t, err)
}

func httpHandler(h *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.HandleWS)
	return mux
}

func startHub(t *testing.T, source EventSource) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(source, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(httpHandler(hub))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	before := hub.ClientCount()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount() == before+1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHubStreamsBinaryFrames(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, hub, srv, "")

	require.NoError(t, hub.PublishEvent(context.Background(), domain.Event{
		Type: domain.EventPredictionSettled, Slot: 9, Payload: json.RawMessage(`{"id":1}`),
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, domain.EventPredictionSettled, ev.Type)
	assert.Equal(t, uint64(9), ev.Slot)
}

func TestHubFiltersJSONClientsByType(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, hub, srv, "?format=json&types="+domain.EventSettlementDue)

	ctx := context.Background()
	require.NoError(t, hub.PublishEvent(ctx, domain.Event{Type: domain.EventPredictionCreated}))
	require.NoError(t, hub.PublishEvent(ctx, domain.Event{Type: domain.EventSettlementDue, Payload: json.RawMessage(`{"id":3}`)}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)

	var ev domain.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, domain.EventSettlementDue, ev.Type)
	assert.JSONEq(t, `{"id":3}`, string(ev.Payload))
}

func TestHubRelaysEventSource(t *testing.T) {
	events := make(chan domain.Event, 1)
	hub, srv := startHub(t, func(context.Context) (<-chan domain.Event, error) { return events, nil })
	conn := dial(t, hub, srv, "?format=json")

	events <- domain.Event{Type: domain.EventFeesWithdrawn}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), domain.EventFeesWithdrawn)
}
