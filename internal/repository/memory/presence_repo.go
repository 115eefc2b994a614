package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// PresenceRepository counts live connections per user.
type PresenceRepository struct {
	mu    sync.Mutex
	conns map[uuid.UUID]int
}

// NewPresenceRepository creates an empty presence table
func NewPresenceRepository() *PresenceRepository {
	return &PresenceRepository{conns: make(map[uuid.UUID]int)}
}

// SetOnline registers one connection of userID
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID]++
	return nil
}

// SetOffline releases one connection of userID
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] <= 1 {
		delete(r.conns, userID)
		return nil
	}
	r.conns[userID]--
	return nil
}

// IsOnline reports whether userID holds at least one connection
func (r *PresenceRepository) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[userID] > 0, nil
}
