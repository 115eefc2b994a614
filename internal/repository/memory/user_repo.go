package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

// UserRepository keeps the user directory
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

// NewUserRepository creates an empty user directory
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uuid.UUID]*domain.User)}
}

// CreateIfAbsent stores user unless its id is taken
func (r *UserRepository) CreateIfAbsent(ctx context.Context, user *domain.User) (*domain.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[user.ID]; ok {
		return existing.Clone(), false, nil
	}
	r.users[user.ID] = user.Clone()
	return user.Clone(), true, nil
}

// Get returns the user by id
func (r *UserRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, apperrors.NotFoundError("user")
	}
	return user.Clone(), nil
}

// List returns every user, oldest first
func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, user.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AddTagged adds friendID to the user's tagged set
func (r *UserRepository) AddTagged(ctx context.Context, userID, friendID uuid.UUID) (bool, error) {
	return r.updateTagged(userID, func(tagged domain.IDSet) bool { return tagged.Add(friendID) })
}

// RemoveTagged removes friendID from the user's tagged set
func (r *UserRepository) RemoveTagged(ctx context.Context, userID, friendID uuid.UUID) (bool, error) {
	return r.updateTagged(userID, func(tagged domain.IDSet) bool { return tagged.Remove(friendID) })
}

func (r *UserRepository) updateTagged(userID uuid.UUID, fn func(tagged domain.IDSet) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return false, apperrors.NotFoundError("user")
	}
	if user.Tagged == nil {
		user.Tagged = domain.NewIDSet()
	}
	return fn(user.Tagged), nil
}
