// Package audit records moderation and membership events to one or more sinks.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/pkg/logger"
)

// EventType represents the type of audit event
type EventType string

const (
	// Moderation events
	EventModerationBlocked EventType = "moderation_blocked"
	EventBlocklistUpdated  EventType = "blocklist_updated"

	// Group events
	EventGroupCreate   EventType = "group_create"
	EventMemberAdd     EventType = "member_add"
	EventMemberRemove  EventType = "member_remove"
	EventAdminPromote  EventType = "admin_promote"
	EventAdminDemote   EventType = "admin_demote"
	EventGroupJoin     EventType = "group_join"
	EventAccessDenied  EventType = "access_denied"
	EventLastAdminGone EventType = "last_admin_demoted"

	// Conversation events
	EventConversationCreate EventType = "conversation_create"
	EventAttachmentUpload   EventType = "attachment_upload"

	// Call events
	EventCallStart EventType = "call_start"
	EventCallEnd   EventType = "call_end"

	// User directory events
	EventUserCreate EventType = "user_create"
	EventUserTag    EventType = "user_tag"
	EventUserUntag  EventType = "user_untag"
)

// Event represents an audit log entry
type Event struct {
	EventID     uuid.UUID  `json:"event_id"`
	EventType   EventType  `json:"event_type"`
	Service     string     `json:"service"`
	Environment string     `json:"environment"`
	RequestID   string     `json:"request_id,omitempty"`
	ActorID     *uuid.UUID `json:"actor_id,omitempty"`
	TargetID    *uuid.UUID `json:"target_id,omitempty"`
	Resource    string     `json:"resource,omitempty"`
	Success     bool       `json:"success"`
	ErrorCode   string     `json:"error_code,omitempty"`
	Details     string     `json:"details,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Sink persists or forwards audit events
type Sink interface {
	Write(ctx context.Context, event *Event) error
	Close() error
}

// Logger stamps events and fans them out to its sinks. Sink failures are logged,
// never returned: auditing must not fail the operation being audited.
type Logger struct {
	sinks       []Sink
	service     string
	environment string
}

// NewLogger creates a new audit logger
func NewLogger(service, environment string, sinks ...Sink) *Logger {
	return &Logger{
		sinks:       sinks,
		service:     service,
		environment: environment,
	}
}

// Log stamps and writes an audit event to every sink
func (l *Logger) Log(ctx context.Context, event *Event) {
	if l == nil {
		return
	}

	event.Timestamp = time.Now().UTC()
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	event.Service = l.service
	event.Environment = l.environment
	if event.RequestID == "" {
		event.RequestID = logger.RequestIDFromContext(ctx)
	}

	for _, sink := range l.sinks {
		if err := sink.Write(ctx, event); err != nil {
			logger.FromContext(ctx).Warn("Audit sink write failed",
				zap.String("event_type", string(event.EventType)),
				zap.Error(err))
		}
	}
}

// Close closes every sink
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	var firstErr error
	for _, sink := range l.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Record is a shorthand for the common actor/target/resource event
func (l *Logger) Record(ctx context.Context, eventType EventType, actorID uuid.UUID, targetID *uuid.UUID, resource string, success bool) {
	l.Log(ctx, &Event{
		EventType: eventType,
		ActorID:   &actorID,
		TargetID:  targetID,
		Resource:  resource,
		Success:   success,
	})
}

// LogModerationBlocked logs a send rejected by the blocklist. The matched word
// is recorded, the message text is not.
func (l *Logger) LogModerationBlocked(ctx context.Context, senderID uuid.UUID, conversation, match string) {
	l.Log(ctx, &Event{
		EventType: EventModerationBlocked,
		ActorID:   &senderID,
		Resource:  conversation,
		Success:   false,
		ErrorCode: "MODERATION_BLOCKED",
		Details:   match,
	})
}

// LogBlocklistUpdated logs an administrative blocklist swap
func (l *Logger) LogBlocklistUpdated(ctx context.Context, adminID uuid.UUID, source string) {
	var actor *uuid.UUID
	if adminID != uuid.Nil {
		actor = &adminID
	}
	l.Log(ctx, &Event{
		EventType: EventBlocklistUpdated,
		ActorID:   actor,
		Resource:  "blocklist",
		Success:   true,
		Details:   source,
	})
}
