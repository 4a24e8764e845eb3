package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hub/internal/fanout"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Priority  bool   `json:"priority,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Events []string `json:"events"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsSession pairs a connection with its fanout subscription. The
// subscription's bounded queue is the only buffer, so a slow client
// loses its oldest messages and never holds up anyone else.
type wsSession struct {
	conn   *websocket.Conn
	sub    *fanout.Subscription
	cfg    config.WebSocketConfig
	logger *logging.Logger

	writeMu sync.Mutex
}

// parseEventFilter validates a comma-separated event list.
func parseEventFilter(raw string) ([]string, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	var events []string
	for _, e := range strings.Split(raw, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !slices.Contains(fanout.AllEvents, e) {
			return nil, false
		}
		events = append(events, e)
	}
	return events, true
}

// handleWebSocket upgrades the connection and streams fanout messages.
//
// Query parameters:
//   - events: comma-separated event names; empty means all events
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	events, ok := parseEventFilter(r.URL.Query().Get("events"))
	if !ok {
		writeBadRequest(w, "unknown event in events filter")
		return
	}

	// Subscribe before the handshake completes so nothing broadcast after
	// the client sees 101 is missed.
	sub := s.hub.Subscribe(events...)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := &wsSession{
		conn:   conn,
		sub:    sub,
		cfg:    s.wsCfg,
		logger: s.logger,
	}
	s.logger.Debug("websocket client connected", "subscriber", sess.sub.ID(), "events", events)

	ctx, cancel := context.WithCancel(s.ctx)
	go func() {
		sess.readPump()
		cancel()
	}()
	go sess.writePump(ctx)
}

func (c *wsSession) pingInterval() time.Duration {
	if c.cfg.PingInterval <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.cfg.PingInterval) * time.Second
}

func (c *wsSession) pongWait() time.Duration {
	if c.cfg.PongTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.cfg.PongTimeout) * time.Second
}

// readPump reads control messages until the connection fails.
func (c *wsSession) readPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.cfg.MaxMessageSize))
	}
	deadline := c.pingInterval() + c.pongWait()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "subscriber", c.sub.ID())
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(message)
	}
}

// writePump forwards fanout messages and keeps the connection alive.
func (c *wsSession) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval())
	defer func() {
		ticker.Stop()
		c.sub.Close()
		c.conn.Close()
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.sub.Done():
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		msg, err := c.sub.Next(ctx)
		if err != nil {
			c.write(websocket.CloseMessage, nil) //nolint:errcheck // Best-effort close message
			return
		}
		if err := c.sendJSON(WSMessage{
			Type:      WSTypeEvent,
			Seq:       msg.Seq,
			EventType: msg.Event,
			Priority:  msg.Priority,
			Timestamp: msg.Timestamp.UTC().Format(time.RFC3339Nano),
			Payload:   msg.Payload,
		}); err != nil {
			return
		}
	}
}

func (c *wsSession) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	//nolint:errcheck // Best-effort deadline; write error caught below
	c.conn.SetWriteDeadline(time.Now().Add(c.pongWait()))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsSession) sendJSON(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Warn("failed to marshal websocket message", "event", msg.EventType, "error", err)
		return nil
	}
	return c.write(websocket.TextMessage, data)
}

// handleMessage processes an incoming WebSocket message.
func (c *wsSession) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleFilterChange(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleFilterChange adds or removes events from the subscription.
func (c *wsSession) handleFilterChange(msg WSMessage) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}

	var sub WSSubscribePayload
	if err := json.Unmarshal(payloadBytes, &sub); err != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}
	for _, e := range sub.Events {
		if !slices.Contains(fanout.AllEvents, e) {
			c.sendError(msg.ID, "unknown event: "+e)
			return
		}
	}

	key := "subscribed"
	if msg.Type == WSTypeSubscribe {
		c.sub.Add(sub.Events...)
	} else {
		c.sub.Remove(sub.Events...)
		key = "unsubscribed"
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Events})
}

// sendResponse sends a response message to the client.
func (c *wsSession) sendResponse(id, msgType string, payload any) {
	//nolint:errcheck // write failures end the session through the pumps
	c.sendJSON(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// sendError sends an error message to the client.
func (c *wsSession) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
