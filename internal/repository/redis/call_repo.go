package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chatcore-backend/internal/database"
	"chatcore-backend/internal/domain"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
)

// setSignal writes one slot only when the session still exists
var setSignal = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// CallSessionRepository keeps signaling sessions in one hash per session.
// Abandoned sessions expire after constants.CallSessionTTL.
type CallSessionRepository struct {
	client *database.RedisClient
}

// NewCallSessionRepository creates a new CallSessionRepository
func NewCallSessionRepository(client *database.RedisClient) *CallSessionRepository {
	return &CallSessionRepository{client: client}
}

// Save creates or replaces a session
func (r *CallSessionRepository) Save(ctx context.Context, session *domain.CallSession) error {
	if r.client.IsDegraded() {
		return apperrors.TransientError("save call session", database.ErrDegraded)
	}

	key := callKey(session.ID)
	_, err := r.client.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"offerer", session.Offerer.String(),
			"answerer", session.Answerer.String(),
			string(domain.RoleOfferer), session.OffererSignal,
			string(domain.RoleAnswerer), session.AnswererSignal,
			"started_at", session.StartedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, constants.CallSessionTTL)
		return nil
	})
	if err != nil {
		return apperrors.TransientError("save call session", err)
	}
	return nil
}

// Get returns the session
func (r *CallSessionRepository) Get(ctx context.Context, sessionID uuid.UUID) (*domain.CallSession, error) {
	if r.client.IsDegraded() {
		return nil, apperrors.TransientError("get call session", database.ErrDegraded)
	}

	fields, err := r.client.Client.HGetAll(ctx, callKey(sessionID)).Result()
	if err != nil {
		return nil, apperrors.TransientError("get call session", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.NotFoundError("call session")
	}
	return decodeSession(sessionID, fields)
}

// SetSignal overwrites one slot
func (r *CallSessionRepository) SetSignal(ctx context.Context, sessionID uuid.UUID, role domain.SignalRole, blob string) error {
	if r.client.IsDegraded() {
		return apperrors.TransientError("set call signal", database.ErrDegraded)
	}

	written, err := setSignal.Run(ctx, r.client.Client, []string{callKey(sessionID)}, string(role), blob).Int()
	if err != nil {
		return apperrors.TransientError("set call signal", err)
	}
	if written == 0 {
		return apperrors.NotFoundError("call session")
	}
	return nil
}

// Delete discards a session; unknown ids are ignored
func (r *CallSessionRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := r.client.SafeDel(ctx, callKey(sessionID)).Err(); err != nil {
		return apperrors.TransientError("delete call session", err)
	}
	return nil
}

func decodeSession(sessionID uuid.UUID, fields map[string]string) (*domain.CallSession, error) {
	offerer, err := uuid.Parse(fields["offerer"])
	if err != nil {
		return nil, fmt.Errorf("corrupt call session %s: %w", sessionID, err)
	}
	answerer, err := uuid.Parse(fields["answerer"])
	if err != nil {
		return nil, fmt.Errorf("corrupt call session %s: %w", sessionID, err)
	}
	startedAt, err := time.Parse(time.RFC3339Nano, fields["started_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt call session %s: %w", sessionID, err)
	}

	return &domain.CallSession{
		ID:             sessionID,
		Offerer:        offerer,
		Answerer:       answerer,
		OffererSignal:  fields[string(domain.RoleOfferer)],
		AnswererSignal: fields[string(domain.RoleAnswerer)],
		StartedAt:      startedAt,
	}, nil
}

func callKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("call:session:%s", sessionID)
}
