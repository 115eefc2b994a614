// Package ws serves the live WebSocket streams: conversation snapshots and
// call signaling.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatcore-backend/pkg/constants"
	"chatcore-backend/pkg/metrics"
)

// Frame types
const (
	FrameSnapshot = "snapshot"
	FrameSend     = "send"
	FrameMarkRead = "mark_viewed"
	FrameSignal   = "signal"
	FramePeer     = "peer_signal"
	FrameEnded    = "call_ended"
	FrameError    = "error"
)

// Frame is the JSON envelope of every WebSocket message in both directions
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	At      time.Time       `json:"at"`
}

// NewUpgrader accepts the listed origins. "*" or an empty list accepts any origin.
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	_, anyOrigin := allowed["*"]

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if anyOrigin || len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// client is one upgraded connection. send is closed exactly once, under mu.
type client struct {
	hub     string
	conn    *websocket.Conn
	send    chan []byte
	metrics *metrics.Metrics
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newClient(ctx context.Context, hub string, conn *websocket.Conn, m *metrics.Metrics, log *zap.Logger) *client {
	ctx, cancel := context.WithCancel(ctx)
	m.AddWebSocketConnections(hub, 1)
	return &client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		metrics: m,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
	c.metrics.AddWebSocketConnections(c.hub, -1)
}

// write queues a frame. A client that cannot keep up is dropped.
func (c *client) write(frame *Frame) bool {
	if frame.At.IsZero() {
		frame.At = time.Now().UTC()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("Failed to marshal frame", zap.Error(err))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		c.metrics.RecordWebSocketMessage(frame.Type, "out")
		return true
	default:
		c.log.Warn("WebSocket client too slow, dropping connection")
		c.metrics.RecordWebSocketError("slow_client")
		c.closeLocked()
		return false
	}
}

func (c *client) writePayload(frameType string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("Failed to marshal payload", zap.Error(err))
		return false
	}
	return c.write(&Frame{Type: frameType, Payload: data})
}

func (c *client) writeError(code, message string) bool {
	return c.write(&Frame{Type: FrameError, Code: code, Message: message})
}

// readPump decodes inbound frames until the connection fails. onPong runs on
// every pong, handle on every frame.
func (c *client) readPump(onPong func(), handle func(*Frame)) {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.MaxSignalSize * 2)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		if onPong != nil {
			onPong()
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("WebSocket connection closed", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.metrics.RecordWebSocketError("bad_frame")
			c.writeError("VALIDATION_ERROR", "invalid frame")
			continue
		}
		c.metrics.RecordWebSocketMessage(frame.Type, "in")
		handle(&frame)
	}
}

// writePump drains send and keeps the connection alive with pings
func (c *client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// acquire takes a connection slot, reporting false when the hub is full
func acquire(slots chan struct{}) bool {
	select {
	case slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func release(slots chan struct{}) { <-slots }
