package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

// DirectoryRepository keeps direct conversations keyed by id.
type DirectoryRepository struct {
	mu    sync.RWMutex
	convs map[uuid.UUID]*domain.DirectConversation
}

// NewDirectoryRepository creates an empty directory
func NewDirectoryRepository() *DirectoryRepository {
	return &DirectoryRepository{convs: make(map[uuid.UUID]*domain.DirectConversation)}
}

// CreateIfAbsent stores conv unless its id is taken; the first writer wins.
func (r *DirectoryRepository) CreateIfAbsent(ctx context.Context, conv *domain.DirectConversation) (*domain.DirectConversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.convs[conv.ID]; ok {
		c := *existing
		return &c, false, nil
	}
	stored := *conv
	r.convs[conv.ID] = &stored
	c := stored
	return &c, true, nil
}

// Get returns the conversation by id
func (r *DirectoryRepository) Get(ctx context.Context, conversationID uuid.UUID) (*domain.DirectConversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, apperrors.NotFoundError("conversation")
	}
	c := *conv
	return &c, nil
}

// ListByParticipant returns the conversations of userID, newest first
func (r *DirectoryRepository) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]*domain.DirectConversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.DirectConversation, 0)
	for _, conv := range r.convs {
		if conv.HasParticipant(userID) {
			c := *conv
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
