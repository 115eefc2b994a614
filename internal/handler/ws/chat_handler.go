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
	"chatcore-backend/internal/repository"
	"chatcore-backend/internal/service/chat"
	"chatcore-backend/internal/visibility"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/response"
)

// presenceRefresher is implemented by presence stores whose entries expire
type presenceRefresher interface {
	Refresh(ctx context.Context, userID uuid.UUID) error
}

// SendFrame is the payload of an inbound "send" frame
type SendFrame struct {
	Text     string `json:"text"`
	ViewOnce bool   `json:"view_once"`
}

// MarkViewedFrame is the payload of an inbound "mark_viewed" frame
type MarkViewedFrame struct {
	MessageID uuid.UUID `json:"message_id"`
}

// SnapshotFrame is the payload of an outbound "snapshot" frame: the whole
// conversation as the connected viewer sees it
type SnapshotFrame struct {
	ConversationID uuid.UUID               `json:"conversation_id"`
	Kind           domain.ConversationKind `json:"kind"`
	Messages       []visibility.Rendered   `json:"messages"`
}

// ChatHub serves conversation streams. Each connection holds one notifier
// subscription and receives a fresh snapshot after every change.
type ChatHub struct {
	chat     *chat.Service
	presence repository.PresenceRepository
	metrics  *metrics.Metrics
	upgrader *websocket.Upgrader
	slots    chan struct{}
}

// NewChatHub creates a chat hub allowing maxConnections concurrent streams
func NewChatHub(chatService *chat.Service, presence repository.PresenceRepository, m *metrics.Metrics, origins []string, maxConnections int) *ChatHub {
	if maxConnections <= 0 {
		maxConnections = 1000
	}
	return &ChatHub{
		chat:     chatService,
		presence: presence,
		metrics:  m,
		upgrader: NewUpgrader(origins),
		slots:    make(chan struct{}, maxConnections),
	}
}

// ServeWS streams one conversation to the caller
// GET /v1/ws/chat?kind=group&conversation_id=...&marker=...
func (h *ChatHub) ServeWS(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conversationID, err := uuid.Parse(c.Query("conversation_id"))
	if err != nil {
		response.ValidationError(c, "conversation_id required")
		return
	}
	kind := domain.ConversationKind(c.DefaultQuery("kind", string(domain.KindDirect)))
	if kind != domain.KindDirect && kind != domain.KindGroup {
		response.ValidationError(c, "kind must be direct or group")
		return
	}
	ref := domain.ConversationRef{ID: conversationID, Kind: kind}

	opts := visibility.DefaultOptions()
	if marker, ok := c.GetQuery("marker"); ok {
		opts.Marker = marker
	}

	if !acquire(h.slots) {
		logger.FromContext(c.Request.Context()).Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", cap(h.slots)))
		response.Error(c, http.StatusServiceUnavailable, "AT_CAPACITY", "Server at capacity, please try again later")
		return
	}
	defer release(h.slots)

	ctx := context.WithoutCancel(c.Request.Context())
	sub, err := h.chat.Subscribe(ctx, ref, caller.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromContext(ctx).Warn("WebSocket upgrade failed",
			logger.ConversationID(conversationID),
			logger.UserID(caller.ID),
			zap.Error(err))
		return
	}

	log := logger.FromContext(ctx).With(logger.ConversationID(conversationID), logger.UserID(caller.ID))
	cl := newClient(ctx, "chat", conn, h.metrics, log)

	h.online(cl.ctx, caller.ID, true)
	defer h.online(context.WithoutCancel(cl.ctx), caller.ID, false)

	go cl.writePump()
	go h.stream(cl, sub, ref, caller.ID, opts)

	cl.readPump(
		func() { h.refresh(cl.ctx, caller.ID) },
		func(frame *Frame) { h.handle(cl, frame, ref, caller) },
	)
}

// stream renders every snapshot for the viewer and consumes what it revealed
func (h *ChatHub) stream(cl *client, sub *notifier.Subscription, ref domain.ConversationRef, viewer uuid.UUID, opts visibility.Options) {
	for {
		select {
		case <-cl.ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				cl.close()
				return
			}
			rendered, err := h.chat.Deliver(cl.ctx, snap, viewer, opts)
			if err != nil {
				cl.log.Warn("Failed to mark delivered messages", zap.Error(err))
			}
			if !cl.writePayload(FrameSnapshot, SnapshotFrame{
				ConversationID: ref.ID,
				Kind:           ref.Kind,
				Messages:       rendered,
			}) {
				return
			}
		}
	}
}

func (h *ChatHub) handle(cl *client, frame *Frame, ref domain.ConversationRef, caller domain.Identity) {
	switch frame.Type {
	case FrameSend:
		var in SendFrame
		if err := json.Unmarshal(frame.Payload, &in); err != nil {
			cl.writeError(string(apperrors.ErrCodeValidation), "invalid send payload")
			return
		}
		// The stored message reaches this client with the next snapshot
		if _, err := h.chat.SendText(cl.ctx, &chat.SendTextInput{
			Conversation: ref,
			Sender:       caller,
			Text:         in.Text,
			ViewOnce:     in.ViewOnce,
		}); err != nil {
			writeAppError(cl, err)
		}

	case FrameMarkRead:
		var in MarkViewedFrame
		if err := json.Unmarshal(frame.Payload, &in); err != nil || in.MessageID == uuid.Nil {
			cl.writeError(string(apperrors.ErrCodeValidation), "invalid mark_viewed payload")
			return
		}
		if _, err := h.chat.MarkViewed(cl.ctx, ref, in.MessageID, caller.ID); err != nil {
			writeAppError(cl, err)
		}

	default:
		cl.writeError(string(apperrors.ErrCodeValidation), "unknown frame type")
	}
}

func (h *ChatHub) online(ctx context.Context, userID uuid.UUID, online bool) {
	if h.presence == nil {
		return
	}
	var err error
	if online {
		err = h.presence.SetOnline(ctx, userID)
	} else {
		err = h.presence.SetOffline(ctx, userID)
	}
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to update presence",
			logger.UserID(userID),
			zap.Bool("online", online),
			zap.Error(err))
	}
}

func (h *ChatHub) refresh(ctx context.Context, userID uuid.UUID) {
	if r, ok := h.presence.(presenceRefresher); ok {
		if err := r.Refresh(ctx, userID); err != nil {
			logger.FromContext(ctx).Debug("Failed to refresh presence", zap.Error(err))
		}
	}
}

// writeAppError reports a service error on the stream without closing it
func writeAppError(cl *client, err error) {
	if !apperrors.IsAppError(err) {
		cl.log.Error("Unhandled stream error", zap.Error(err))
		cl.writeError(string(apperrors.ErrCodeInternal), "Internal server error")
		return
	}
	appErr := apperrors.GetAppError(err)
	cl.writeError(string(appErr.Code), appErr.Message)
}
