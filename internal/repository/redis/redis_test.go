package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/database"
	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

// degradedClient points at a closed port and fails its health check
func degradedClient(t *testing.T) *database.RedisClient {
	t.Helper()
	client := database.WrapRedis(goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	t.Cleanup(func() { _ = client.Close() })

	require.Error(t, client.HealthCheck(context.Background()))
	require.True(t, client.IsDegraded())
	return client
}

func TestDecodeSession(t *testing.T) {
	id, offerer, answerer := uuid.New(), uuid.New(), uuid.New()
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	session, err := decodeSession(id, map[string]string{
		"offerer":    offerer.String(),
		"answerer":   answerer.String(),
		"offer":      "v=0 offer",
		"answer":     "",
		"started_at": started.Format(time.RFC3339Nano),
	})

	require.NoError(t, err)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, offerer, session.Offerer)
	assert.Equal(t, "v=0 offer", session.SignalOf(domain.RoleOfferer))
	assert.Empty(t, session.SignalOf(domain.RoleAnswerer))
	assert.True(t, started.Equal(session.StartedAt))
}

func TestDecodeSession_Corrupt(t *testing.T) {
	_, err := decodeSession(uuid.New(), map[string]string{"offerer": "nope"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")

	assert.Equal(t, "seq:7d444840-9dc0-11d1-b245-5ffdce74fad2", sequenceKey(id))
	assert.Equal(t, "presence:7d444840-9dc0-11d1-b245-5ffdce74fad2", presenceKey(id))
	assert.Equal(t, "call:session:7d444840-9dc0-11d1-b245-5ffdce74fad2", callKey(id))
	assert.Equal(t, "push:user:7d444840-9dc0-11d1-b245-5ffdce74fad2:tokens", userTokensKey(id))
}

func TestDegradedRedisIsTransient(t *testing.T) {
	client := degradedClient(t)
	ctx := context.Background()

	_, err := NewSequencer(client).Next(ctx, uuid.New())
	assert.Equal(t, apperrors.ErrCodeTransient, apperrors.CodeOf(err))

	calls := NewCallSessionRepository(client)
	err = calls.Save(ctx, &domain.CallSession{ID: uuid.New()})
	assert.Equal(t, apperrors.ErrCodeTransient, apperrors.CodeOf(err))

	_, err = calls.Get(ctx, uuid.New())
	assert.Equal(t, apperrors.ErrCodeTransient, apperrors.CodeOf(err))

	err = calls.SetSignal(ctx, uuid.New(), domain.RoleOfferer, "sdp")
	assert.Equal(t, apperrors.ErrCodeTransient, apperrors.CodeOf(err))

	_, err = NewPresenceRepository(client).IsOnline(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrDegraded)
}
