package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatcore-backend/pkg/push"
)

// PushTokenRepository keeps device tokens per user.
type PushTokenRepository struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]map[string]*push.Token
}

// NewPushTokenRepository creates an empty token store
func NewPushTokenRepository() *PushTokenRepository {
	return &PushTokenRepository{tokens: make(map[uuid.UUID]map[string]*push.Token)}
}

// Store registers or refreshes a token
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	byToken, ok := r.tokens[token.UserID]
	if !ok {
		byToken = make(map[string]*push.Token)
		r.tokens[token.UserID] = byToken
	}
	t := *token
	byToken[token.Token] = &t
	return nil
}

// GetByUserID returns every token of userID
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*push.Token, 0, len(r.tokens[userID]))
	for _, t := range r.tokens[userID] {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

// Delete removes a token of userID
func (r *PushTokenRepository) Delete(ctx context.Context, userID uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens[userID], token)
	return nil
}
