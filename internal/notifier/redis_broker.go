package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/pkg/logger"
)

// RedisBroker shares events between instances over redis pub/sub.
// Channel names are the event topics, e.g. chat:<conversation-id>.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a broker on the given client
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish sends event as JSON on the topic channel
func (b *RedisBroker) Publish(ctx context.Context, topic string, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns once redis confirmed the subscription, so events
// published afterwards are never missed.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Stream, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	s := &redisStream{
		pubsub: pubsub,
		events: make(chan *domain.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	go s.forward(ctx, topic)
	return s, nil
}

type redisStream struct {
	pubsub *redis.PubSub
	events chan *domain.Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisStream) Events() <-chan *domain.Event { return s.events }

func (s *redisStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisStream) forward(ctx context.Context, topic string) {
	defer close(s.events)
	defer s.Close()

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("Failed to unmarshal redis event",
					zap.String("topic", topic),
					zap.Error(err),
				)
				continue
			}
			select {
			case s.events <- &event:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}
