// Package ws implements the streaming surface: a WebSocket hub pushing
// thinking and content events to connected consoles.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// conn wraps a single WebSocket connection. An empty conversationID means
// the client wants every event.
type conn struct {
	ws             *websocket.Conn
	conversationID string
	cancel         context.CancelFunc
}

// Hub manages active WebSocket connections and fans events out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket connection. A conversation_id
// query parameter scopes the subscription to one conversation.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		ws:             ws,
		conversationID: r.URL.Query().Get("conversation_id"),
		cancel:         cancel,
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "conversation_id", c.conversationID)

	// Read loop, only to detect disconnects and consume pings.
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

// BroadcastEvent implements the broadcast port: the payload is wrapped in the
// message envelope and delivered to every matching connection. Payloads with
// a conversation_id field only reach subscribers of that conversation.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	msg, err := json.Marshal(Message{
		Type:      eventType,
		Payload:   json.RawMessage(data),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("marshal ws message", "type", eventType, "error", err)
		return
	}

	conversationID := probeConversationID(data)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.conversationID != "" && conversationID != "" && c.conversationID != conversationID {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}

func probeConversationID(payload []byte) string {
	var probe struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.ConversationID
}
