// Package ws implements the WebSocket adapter that fans agent events out to
// clients watching a form.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
)

// conn wraps a single WebSocket connection subscribed to one form.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	formID string
}

// Hub manages active WebSocket connections grouped by form id. It
// implements broadcast.Sink.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*conn]struct{})}
}

// HandleWS upgrades the request and subscribes it to the form named by the
// form_id query parameter.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	formID := r.URL.Query().Get("form_id")
	if formID == "" {
		http.Error(w, `{"error":"form_id is required"}`, http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The read loop outlives the handler, so detach from the request context.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel, formID: formID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "form_id", formID)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Send writes ev to every connection watching ev.FormID. Write failures
// drop the connection and are not reported to the caller.
func (h *Hub) Send(ctx context.Context, ev agentevent.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var targets []*conn
	for c := range h.conns {
		if c.formID == ev.FormID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "form_id", c.formID, "error", err)
			h.remove(c)
		}
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Watchers returns the number of connections watching formID.
func (h *Hub) Watchers(formID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.conns {
		if c.formID == formID {
			n++
		}
	}
	return n
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "form_id", c.formID)
	}
}
