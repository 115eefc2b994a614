// Package memory implements every repository contract in process memory.
// It backs STORAGE_BACKEND=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

// GroupRepository keeps groups in a map. Mutations of one group are serialized
// by a per-group lock; readers always receive clones.
type GroupRepository struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*domain.Group
	locks  *keyedMutex
}

// NewGroupRepository creates an empty group repository
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{
		groups: make(map[uuid.UUID]*domain.Group),
		locks:  newKeyedMutex(),
	}
}

// Create stores a new group
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[group.ID]; exists {
		return apperrors.ValidationError("group already exists")
	}
	r.groups[group.ID] = group.Clone()
	return nil
}

// Get returns a copy of the group
func (r *GroupRepository) Get(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[groupID]
	if !ok {
		return nil, apperrors.NotFoundError("group")
	}
	return g.Clone(), nil
}

// Mutate applies fn to a copy of the group and stores it with a bumped version.
func (r *GroupRepository) Mutate(ctx context.Context, groupID uuid.UUID, fn func(group *domain.Group) error) (*domain.Group, error) {
	unlock := r.locks.Lock(groupID)
	defer unlock()

	current, err := r.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := fn(current); err != nil {
		return nil, err
	}
	current.Version++

	r.mu.Lock()
	r.groups[groupID] = current.Clone()
	r.mu.Unlock()

	return current, nil
}

// ListByMember returns the groups userID belongs to, newest first
func (r *GroupRepository) ListByMember(ctx context.Context, userID uuid.UUID) ([]*domain.Group, error) {
	return r.filter(func(g *domain.Group) bool { return g.IsMember(userID) }), nil
}

// ListPublic returns every public group, newest first
func (r *GroupRepository) ListPublic(ctx context.Context) ([]*domain.Group, error) {
	return r.filter((*domain.Group).IsPublic), nil
}

func (r *GroupRepository) filter(keep func(*domain.Group) bool) []*domain.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Group, 0)
	for _, g := range r.groups {
		if keep(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
