// Package repository declares the persistence contracts shared by the memory,
// cluster (CockroachDB, Cassandra, Redis) and embedded (Pebble) backends.
//
// Implementations return apperrors.NotFoundError for missing records and
// apperrors.TransientError for backend failures. Errors returned by a Mutate
// callback are passed through unchanged and abort the mutation.
package repository

import (
	"context"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
)

// GroupRepository stores groups. Mutate is the single serialization point for
// membership changes: fn runs against the current state and its result is
// written atomically, or not at all when fn returns an error.
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	Get(ctx context.Context, groupID uuid.UUID) (*domain.Group, error)
	Mutate(ctx context.Context, groupID uuid.UUID, fn func(group *domain.Group) error) (*domain.Group, error)
	ListByMember(ctx context.Context, userID uuid.UUID) ([]*domain.Group, error)
	ListPublic(ctx context.Context) ([]*domain.Group, error)
}

// DirectoryRepository stores direct conversations keyed by their pair key.
type DirectoryRepository interface {
	// CreateIfAbsent stores conv unless a record with the same key exists. It
	// returns the stored record and whether this call created it.
	CreateIfAbsent(ctx context.Context, conv *domain.DirectConversation) (*domain.DirectConversation, bool, error)
	Get(ctx context.Context, conversationID uuid.UUID) (*domain.DirectConversation, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID) ([]*domain.DirectConversation, error)
}

// UserRepository stores the user directory.
type UserRepository interface {
	// CreateIfAbsent stores user unless a record with the same id exists. An
	// existing record is returned untouched.
	CreateIfAbsent(ctx context.Context, user *domain.User) (*domain.User, bool, error)
	Get(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	// List returns every user ordered by CreatedAt.
	List(ctx context.Context) ([]*domain.User, error)
	// AddTagged and RemoveTagged are atomic set-union and set-difference on
	// Tagged. They report whether the set changed.
	AddTagged(ctx context.Context, userID, friendID uuid.UUID) (bool, error)
	RemoveTagged(ctx context.Context, userID, friendID uuid.UUID) (bool, error)
}

// MessageRepository is the append-only message log.
type MessageRepository interface {
	// Append assigns Seq and SentAt and stores the message.
	Append(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	// List returns the conversation's messages ordered by Seq.
	List(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error)
	Get(ctx context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error)
	// AddViewer adds viewer to ViewedBy as an atomic set-union and reports
	// whether the set grew.
	AddViewer(ctx context.Context, conversationID, messageID, viewer uuid.UUID) (bool, error)
}

// CallSessionRepository keeps transient signaling state.
type CallSessionRepository interface {
	// Save creates or replaces a session.
	Save(ctx context.Context, session *domain.CallSession) error
	Get(ctx context.Context, sessionID uuid.UUID) (*domain.CallSession, error)
	// SetSignal overwrites one slot without touching the other.
	SetSignal(ctx context.Context, sessionID uuid.UUID, role domain.SignalRole, blob string) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// PresenceRepository tracks which users hold a live connection.
type PresenceRepository interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
}
