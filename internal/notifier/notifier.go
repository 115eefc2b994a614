package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
)

// Snapshot is the full ordered message list of a conversation at one point in time.
type Snapshot struct {
	ConversationID uuid.UUID         `json:"conversation_id"`
	Messages       []*domain.Message `json:"messages"`
	TakenAt        time.Time         `json:"taken_at"`
}

// Notifier publishes events and turns them into snapshot streams.
type Notifier struct {
	broker   Broker
	messages repository.MessageRepository
	metrics  *metrics.Metrics
}

// New creates a notifier over broker, reading snapshots from messages
func New(broker Broker, messages repository.MessageRepository, m *metrics.Metrics) *Notifier {
	return &Notifier{broker: broker, messages: messages, metrics: m}
}

// Publish stamps and sends event on its topic.
func (n *Notifier) Publish(ctx context.Context, event *domain.Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := n.broker.Publish(ctx, event.Topic, event); err != nil {
		return apperrors.TransientError("publish event", err)
	}
	return nil
}

// Subscription is a live stream of snapshots for one conversation. Only the
// newest undelivered snapshot is kept: each one supersedes the previous.
type Subscription struct {
	C <-chan *Snapshot

	out    chan *Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the stream. Snapshots not yet received are discarded and C is closed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		for range s.out {
		}
	})
}

// Subscribe starts a snapshot stream. The first snapshot is the current state;
// every appended or viewed message produces a fresh one. The stream ends when
// ctx is done or Close is called.
func (n *Notifier) Subscribe(ctx context.Context, conversationID uuid.UUID) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	// Subscribe before the first read so no change slips between them.
	stream, err := n.broker.Subscribe(subCtx, domain.ConversationTopic(conversationID))
	if err != nil {
		cancel()
		return nil, apperrors.TransientError("subscribe", err)
	}

	out := make(chan *Snapshot, 1)
	sub := &Subscription{
		C:      out,
		out:    out,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	n.metrics.AddSubscriptions(1)
	go n.run(subCtx, conversationID, stream, sub)
	return sub, nil
}

func (n *Notifier) run(ctx context.Context, conversationID uuid.UUID, stream Stream, sub *Subscription) {
	defer func() {
		stream.Close()
		n.metrics.AddSubscriptions(-1)
		close(sub.out)
		close(sub.done)
	}()

	n.emit(ctx, conversationID, sub.out)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-stream.Events():
			if !ok {
				return
			}
			switch event.Type {
			case domain.EventMessageAppended, domain.EventMessageViewed:
				n.emit(ctx, conversationID, sub.out)
			}
		}
	}
}

// emit reads the log and replaces any pending snapshot with the new one.
func (n *Notifier) emit(ctx context.Context, conversationID uuid.UUID, out chan *Snapshot) {
	msgs, err := n.messages.List(ctx, conversationID)
	if err != nil {
		if ctx.Err() == nil {
			logger.FromContext(ctx).Warn("Snapshot read failed",
				logger.ConversationID(conversationID),
				zap.Error(err),
			)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	snap := &Snapshot{ConversationID: conversationID, Messages: msgs, TakenAt: time.Now().UTC()}
	select {
	case out <- snap:
	default:
		select {
		case <-out:
		default:
		}
		out <- snap
	}
	n.metrics.RecordSnapshotDelivered()
}

// EventStream is a live stream of raw events on one topic.
type EventStream struct {
	C <-chan *domain.Event

	stream Stream
	cancel context.CancelFunc
}

// Close stops the stream
func (s *EventStream) Close() {
	s.cancel()
	s.stream.Close()
}

// SubscribeTopic streams raw events on topic, e.g. group or call updates.
func (n *Notifier) SubscribeTopic(ctx context.Context, topic string) (*EventStream, error) {
	subCtx, cancel := context.WithCancel(ctx)
	stream, err := n.broker.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, apperrors.TransientError("subscribe", err)
	}
	return &EventStream{C: stream.Events(), stream: stream, cancel: cancel}, nil
}
