// Package notifier fans store and membership events out to live subscribers.
package notifier

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/pkg/logger"
)

// eventBuffer bounds each broker subscriber's queue.
const eventBuffer = 64

// Broker carries events between publishers and subscribers, possibly across instances.
type Broker interface {
	Publish(ctx context.Context, topic string, event *domain.Event) error
	Subscribe(ctx context.Context, topic string) (Stream, error)
}

// Stream is one broker subscription. Events is closed after Close or when the
// subscribing context ends.
type Stream interface {
	Events() <-chan *domain.Event
	Close() error
}

// LocalBroker fans out events inside one process.
type LocalBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*localStream]struct{}
}

// NewLocalBroker creates an in-process broker
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{topics: make(map[string]map[*localStream]struct{})}
}

type localStream struct {
	broker *LocalBroker
	topic  string
	events chan *domain.Event
	once   sync.Once
}

func (s *localStream) Events() <-chan *domain.Event { return s.events }

func (s *localStream) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.topics[s.topic], s)
		if len(s.broker.topics[s.topic]) == 0 {
			delete(s.broker.topics, s.topic)
		}
		close(s.events)
		s.broker.mu.Unlock()
	})
	return nil
}

// Publish delivers event to every current subscriber of topic. A subscriber
// whose queue is full misses the event.
func (b *LocalBroker) Publish(ctx context.Context, topic string, event *domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.topics[topic] {
		select {
		case s.events <- event:
		default:
			logger.Warn("Subscriber queue full, event dropped",
				zap.String("topic", topic),
				zap.String("event_type", string(event.Type)),
			)
		}
	}
	return nil
}

// Subscribe registers a stream on topic until Close or ctx is done.
func (b *LocalBroker) Subscribe(ctx context.Context, topic string) (Stream, error) {
	s := &localStream{
		broker: b,
		topic:  topic,
		events: make(chan *domain.Event, eventBuffer),
	}

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*localStream]struct{})
	}
	b.topics[topic][s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return s, nil
}
