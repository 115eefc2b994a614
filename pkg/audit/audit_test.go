package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/pkg/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (s *recordingSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestLogStampsEvent(t *testing.T) {
	sink := &recordingSink{}
	l := NewLogger("chat-service", "test", sink)
	ctx := logger.WithRequestID(context.Background(), "req-1")
	actor := uuid.New()

	l.LogModerationBlocked(ctx, actor, "group:abc", "offensive")

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.NotEqual(t, uuid.Nil, ev.EventID)
	assert.Equal(t, EventModerationBlocked, ev.EventType)
	assert.Equal(t, "chat-service", ev.Service)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, actor, *ev.ActorID)
	assert.Equal(t, "offensive", ev.Details)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestLogContinuesPastFailingSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	healthy := &recordingSink{}
	l := NewLogger("chat-service", "test", failing, healthy)

	l.Record(context.Background(), EventMemberAdd, uuid.New(), nil, "group:abc", true)

	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Record(context.Background(), EventGroupJoin, uuid.New(), nil, "group:abc", true)
		_ = l.Close()
	})
}

func TestNewAMQPSinkFallsBackToNoop(t *testing.T) {
	sink := NewAMQPSink("", "chatcore.audit", "chat.audit")

	assert.Equal(t, "noop", SinkMode(sink))
	assert.NoError(t, sink.Write(context.Background(), &Event{EventType: EventGroupCreate}))
}
