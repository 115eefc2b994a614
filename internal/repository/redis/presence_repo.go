package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chatcore-backend/internal/database"
	"chatcore-backend/pkg/constants"
)

const onlineSetKey = "presence:online"

// PresenceRepository handles user online/offline status in Redis.
// Each live connection holds one count; the key expires unless refreshed.
type PresenceRepository struct {
	client *database.RedisClient
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{client: client}
}

// SetOnline registers one connection of userID
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)

	if err := r.client.SafeIncr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	if err := r.client.SafeExpire(ctx, key, constants.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set presence ttl: %w", err)
	}
	if err := r.client.SafeSAdd(ctx, onlineSetKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}
	return nil
}

// SetOffline releases one connection of userID
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)

	remaining, err := r.client.SafeDecr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	if err := r.client.SafeDel(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	if err := r.client.SafeSRem(ctx, onlineSetKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}
	return nil
}

// IsOnline checks if user is currently online
func (r *PresenceRepository) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	exists, err := r.client.SafeExists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return exists > 0, nil
}

// Refresh keeps user online (heartbeat)
func (r *PresenceRepository) Refresh(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.SafeExpire(ctx, presenceKey(userID), constants.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// OnlineCount returns number of online users
func (r *PresenceRepository) OnlineCount(ctx context.Context) (int64, error) {
	count, err := r.client.SafeSCard(ctx, onlineSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count online users: %w", err)
	}
	return count, nil
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}
