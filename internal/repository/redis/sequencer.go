// Package redis implements the redis-backed repositories: message sequencing,
// presence, call sessions and push tokens.
package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chatcore-backend/internal/database"
	apperrors "chatcore-backend/pkg/errors"
)

// Sequencer numbers messages with one INCR counter per conversation
type Sequencer struct {
	client *database.RedisClient
}

// NewSequencer creates a new Sequencer
func NewSequencer(client *database.RedisClient) *Sequencer {
	return &Sequencer{client: client}
}

// Next returns the next sequence number of conversationID, starting at 1
func (s *Sequencer) Next(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	seq, err := s.client.SafeIncr(ctx, sequenceKey(conversationID)).Result()
	if err != nil {
		return 0, apperrors.TransientError("sequence message", err)
	}
	return seq, nil
}

func sequenceKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("seq:%s", conversationID)
}
