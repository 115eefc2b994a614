package visibility

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
)

// Publisher sends notifier events
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Engine records view-once consumption
type Engine struct {
	messages  repository.MessageRepository
	publisher Publisher
	metrics   *metrics.Metrics
}

// NewEngine creates a visibility engine
func NewEngine(messages repository.MessageRepository, publisher Publisher, m *metrics.Metrics) *Engine {
	return &Engine{messages: messages, publisher: publisher, metrics: m}
}

// MarkViewed adds viewer to the message's ViewedBy set when the message is
// view-once, the viewer is not the sender and has not consumed it yet. It
// reports whether the set grew; repeated calls are no-ops.
func (e *Engine) MarkViewed(ctx context.Context, conversationID, messageID, viewer uuid.UUID) (bool, error) {
	msg, err := e.messages.Get(ctx, conversationID, messageID)
	if err != nil {
		return false, err
	}
	return e.mark(ctx, msg, viewer)
}

// MarkRendered marks every message of a delivered snapshot that the viewer
// just saw for the first time. Call it after rendering, never before.
func (e *Engine) MarkRendered(ctx context.Context, msgs []*domain.Message, viewer uuid.UUID) (int, error) {
	marked := 0
	for _, msg := range msgs {
		grew, err := e.mark(ctx, msg, viewer)
		if err != nil {
			return marked, err
		}
		if grew {
			marked++
		}
	}
	return marked, nil
}

func (e *Engine) mark(ctx context.Context, msg *domain.Message, viewer uuid.UUID) (bool, error) {
	if !ShouldMark(msg, viewer) {
		return false, nil
	}

	grew, err := e.messages.AddViewer(ctx, msg.ConversationID, msg.ID, viewer)
	if err != nil || !grew {
		return false, err
	}
	e.metrics.RecordViewMarked()

	if e.publisher != nil {
		id := msg.ID
		if err := e.publisher.Publish(ctx, &domain.Event{
			Type:      domain.EventMessageViewed,
			Topic:     domain.ConversationTopic(msg.ConversationID),
			SubjectID: msg.ConversationID,
			MessageID: &id,
			ActorID:   viewer,
			Seq:       msg.Seq,
		}); err != nil {
			// The mark is stored; subscribers pick it up with the next snapshot.
			logger.FromContext(ctx).Warn("Failed to publish view event",
				logger.MessageID(msg.ID),
				zap.Error(err),
			)
		}
	}
	return true, nil
}
