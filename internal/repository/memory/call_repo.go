package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

// CallSessionRepository keeps signaling sessions until they are ended.
type CallSessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.CallSession
}

// NewCallSessionRepository creates an empty session store
func NewCallSessionRepository() *CallSessionRepository {
	return &CallSessionRepository{sessions: make(map[uuid.UUID]*domain.CallSession)}
}

// Save creates or replaces a session
func (r *CallSessionRepository) Save(ctx context.Context, session *domain.CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := *session
	r.sessions[session.ID] = &s
	return nil
}

// Get returns a copy of the session
func (r *CallSessionRepository) Get(ctx context.Context, sessionID uuid.UUID) (*domain.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, apperrors.NotFoundError("call session")
	}
	c := *s
	return &c, nil
}

// SetSignal overwrites one slot
func (r *CallSessionRepository) SetSignal(ctx context.Context, sessionID uuid.UUID, role domain.SignalRole, blob string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return apperrors.NotFoundError("call session")
	}
	s.SetSignal(role, blob)
	return nil
}

// Delete discards a session; unknown ids are ignored
func (r *CallSessionRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
	return nil
}
