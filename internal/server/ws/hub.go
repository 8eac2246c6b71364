// Package ws streams committed ledger events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

const broadcastQueue = 1024

// ErrBufferFull is returned by PublishEvent when the hub cannot keep up.
var ErrBufferFull = errors.New("ws: broadcast buffer full")

// EventSource yields events from a shared bus so that every host's hub sees
// events committed by any host.
type EventSource func(ctx context.Context) (<-chan domain.Event, error)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans events out to connected clients. Events arrive either through
// PublishEvent or from an EventSource; a host should use one of the two, not
// both, or clients see duplicates.
type Hub struct {
	source EventSource
	queue  chan domain.Event
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	stopped bool
}

var _ domain.EventPublisher = (*Hub)(nil)

// NewHub creates a hub. source may be nil.
func NewHub(source EventSource, logger *slog.Logger) *Hub {
	return &Hub{
		source:  source,
		queue:   make(chan domain.Event, broadcastQueue),
		clients: make(map[*client]struct{}),
		logger:  logger.With(slog.String("component", "ws")),
	}
}

// PublishEvent queues ev for delivery without blocking.
func (h *Hub) PublishEvent(_ context.Context, ev domain.Event) error {
	select {
	case h.queue <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run delivers queued and sourced events until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	var sourced <-chan domain.Event
	if h.source != nil {
		ch, err := h.source(ctx)
		if err != nil {
			return err
		}
		sourced = ch
	}
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-h.queue:
			h.deliver(ev)
		case ev, ok := <-sourced:
			if !ok {
				h.logger.Warn("ws: event source closed")
				sourced = nil
				continue
			}
			h.deliver(ev)
		}
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for c := range h.clients {
		c.closeSend()
		delete(h.clients, c)
	}
}

// frames encodes an event lazily, once per format.
type frames struct {
	ev     domain.Event
	binary []byte
	text   []byte
}

func (f *frames) get(format frameFormat) ([]byte, error) {
	if format == formatJSON {
		if f.text == nil {
			b, err := json.Marshal(f.ev)
			if err != nil {
				return nil, err
			}
			f.text = b
		}
		return f.text, nil
	}
	if f.binary == nil {
		f.binary = EncodeEvent(f.ev)
	}
	return f.binary, nil
}

func (h *Hub) deliver(ev domain.Event) {
	f := frames{ev: ev}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.filter.matches(ev.Type) {
			continue
		}
		frame, err := f.get(c.format)
		if err != nil {
			h.logger.Error("ws: encode event", slog.String("type", ev.Type), slog.String("error", err.Error()))
			return
		}
		if !c.enqueue(frame) {
			h.logger.Warn("ws: dropping frame for slow client", slog.String("type", ev.Type))
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("ws: client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closeSend()
	h.logger.Info("ws: client disconnected", slog.Int("clients", len(h.clients)))
}

// HandleWS upgrades the request and attaches the connection to the hub.
// Frames are protobuf-encoded unless the client asks for ?format=json;
// ?types=a,b narrows the initial subscription.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, r.URL.Query())
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
