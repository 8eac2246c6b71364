package ws

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

type frameFormat int

const (
	formatBinary frameFormat = iota
	formatJSON
)

// filter is a client's set of subscribed event types. An empty type set
// with all unset matches nothing.
type filter struct {
	mu    sync.RWMutex
	all   bool
	types map[string]struct{}
}

func (f *filter) matches(eventType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.all {
		return true
	}
	_, ok := f.types[eventType]
	return ok
}

func (f *filter) apply(action string, types []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range types {
		switch {
		case action == "subscribe" && t == "*":
			f.all = true
		case action == "subscribe":
			f.types[t] = struct{}{}
		case action == "unsubscribe" && t == "*":
			f.all = false
		case action == "unsubscribe":
			delete(f.types, t)
		}
	}
}

// control is the JSON message a client sends to change its subscription,
// e.g. {"action":"subscribe","types":["prediction_settled"]}.
type control struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	format frameFormat
	filter filter

	send      chan []byte
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, q url.Values) *client {
	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		filter: filter{types: make(map[string]struct{})},
	}
	if q.Get("format") == "json" {
		c.format = formatJSON
	}
	types := q.Get("types")
	if types == "" {
		c.filter.all = true
		return c
	}
	for _, t := range strings.Split(types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			c.filter.types[t] = struct{}{}
		}
	}
	return c
}

// enqueue hands a frame to the write loop; false means the client is behind.
func (c *client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend is called with the hub lock held.
func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *client) readLoop() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var ctl control
		if json.Unmarshal(msg, &ctl) == nil && ctl.Action != "" {
			c.filter.apply(ctl.Action, ctl.Types)
		}
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	msgType := websocket.BinaryMessage
	if c.format == formatJSON {
		msgType = websocket.TextMessage
	}

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(msgType, frame); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
