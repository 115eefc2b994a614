package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a notifier event
type EventType string

const (
	EventMessageAppended EventType = "message.appended"
	EventMessageViewed   EventType = "message.viewed"
	EventGroupUpdated    EventType = "group.updated"
	EventSignalPublished EventType = "signal.published"
	EventCallEnded       EventType = "call.ended"
)

// Event is published on a topic; subscribers re-read the store on receipt.
type Event struct {
	Type      EventType  `json:"type"`
	Topic     string     `json:"topic"`
	SubjectID uuid.UUID  `json:"subject_id"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
	ActorID   uuid.UUID  `json:"actor_id"`
	Seq       int64      `json:"seq,omitempty"`
	Role      SignalRole `json:"role,omitempty"`
	At        time.Time  `json:"at"`
}

// ConversationTopic is the broker channel of a message log
func ConversationTopic(id uuid.UUID) string { return "chat:" + id.String() }

// GroupTopic is the broker channel of group membership changes
func GroupTopic(id uuid.UUID) string { return "group:" + id.String() }

// CallTopic is the broker channel of a call session
func CallTopic(id uuid.UUID) string { return "call:" + id.String() }
