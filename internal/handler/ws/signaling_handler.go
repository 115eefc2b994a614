package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/notifier"
	"chatcore-backend/internal/service/signaling"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/response"
)

// SignalFrame is the payload of an inbound "signal" frame
type SignalFrame struct {
	Signal string `json:"signal"`
}

// TopicSubscriber opens raw event streams
type TopicSubscriber interface {
	SubscribeTopic(ctx context.Context, topic string) (*notifier.EventStream, error)
}

// SignalingHub relays call signaling over WebSocket. Blobs still go through
// the session store, so REST and WebSocket participants can be mixed.
type SignalingHub struct {
	signaling *signaling.Service
	events    TopicSubscriber
	metrics   *metrics.Metrics
	upgrader  *websocket.Upgrader
	slots     chan struct{}
}

// NewSignalingHub creates a signaling hub allowing maxConnections concurrent connections
func NewSignalingHub(signalingService *signaling.Service, events TopicSubscriber, m *metrics.Metrics, origins []string, maxConnections int) *SignalingHub {
	if maxConnections <= 0 {
		maxConnections = 1000
	}
	return &SignalingHub{
		signaling: signalingService,
		events:    events,
		metrics:   m,
		upgrader:  NewUpgrader(origins),
		slots:     make(chan struct{}, maxConnections),
	}
}

// ServeWS relays one call session to a participant
// GET /v1/ws/signaling?session_id=...
func (h *SignalingHub) ServeWS(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	sessionID, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		response.ValidationError(c, "session_id required")
		return
	}

	if !acquire(h.slots) {
		logger.FromContext(c.Request.Context()).Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", cap(h.slots)))
		response.Error(c, http.StatusServiceUnavailable, "AT_CAPACITY", "Server at capacity, please try again later")
		return
	}
	defer release(h.slots)

	ctx := context.WithoutCancel(c.Request.Context())
	if _, err := h.signaling.Get(ctx, sessionID, caller.ID); err != nil {
		response.FromError(c, err)
		return
	}

	events, err := h.events.SubscribeTopic(ctx, domain.CallTopic(sessionID))
	if err != nil {
		response.FromError(c, err)
		return
	}
	defer events.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromContext(ctx).Warn("WebSocket upgrade failed",
			logger.SessionID(sessionID),
			logger.UserID(caller.ID),
			zap.Error(err))
		return
	}

	log := logger.FromContext(ctx).With(logger.SessionID(sessionID), logger.UserID(caller.ID))
	cl := newClient(ctx, "signaling", conn, h.metrics, log)

	go cl.writePump()
	go h.relay(cl, events, sessionID, caller.ID)

	// A peer that published before this connection opened is delivered at once
	h.sendPeer(cl, sessionID, caller.ID)

	cl.readPump(nil, func(frame *Frame) { h.handle(cl, frame, sessionID, caller.ID) })
}

// relay forwards the peer's publications and the end of the call
func (h *SignalingHub) relay(cl *client, events *notifier.EventStream, sessionID, caller uuid.UUID) {
	for {
		select {
		case <-cl.ctx.Done():
			return
		case event, ok := <-events.C:
			if !ok {
				cl.close()
				return
			}
			switch event.Type {
			case domain.EventSignalPublished:
				if event.ActorID != caller {
					h.sendPeer(cl, sessionID, caller)
				}
			case domain.EventCallEnded:
				cl.writePayload(FrameEnded, event)
				cl.close()
				return
			}
		}
	}
}

func (h *SignalingHub) sendPeer(cl *client, sessionID, caller uuid.UUID) {
	signal, err := h.signaling.Read(cl.ctx, sessionID, caller)
	if err != nil {
		writeAppError(cl, err)
		return
	}
	if signal.Present {
		cl.writePayload(FramePeer, signal)
	}
}

func (h *SignalingHub) handle(cl *client, frame *Frame, sessionID, caller uuid.UUID) {
	if frame.Type != FrameSignal {
		cl.writeError(string(apperrors.ErrCodeValidation), "unknown frame type")
		return
	}

	var in SignalFrame
	if err := json.Unmarshal(frame.Payload, &in); err != nil {
		cl.writeError(string(apperrors.ErrCodeValidation), "invalid signal payload")
		return
	}
	if _, err := h.signaling.Publish(cl.ctx, sessionID, caller, in.Signal); err != nil {
		writeAppError(cl, err)
	}
}
