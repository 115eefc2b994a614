package cockroach

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

// fakeRow copies fixed values into Scan destinations
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case *string:
			*p = r.values[i].(string)
		case *[]string:
			*p = r.values[i].([]string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case *int64:
			*p = r.values[i].(int64)
		default:
			return fmt.Errorf("unexpected destination %T", d)
		}
	}
	return nil
}

func TestScanGroup(t *testing.T) {
	id, alice, bob := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	group, err := scanGroup(fakeRow{values: []any{
		id, "team", "public",
		[]string{alice.String(), bob.String(), "garbage"},
		[]string{alice.String()},
		alice, now, int64(4),
	}})

	require.NoError(t, err)
	assert.Equal(t, id, group.ID)
	assert.Equal(t, domain.VisibilityPublic, group.Visibility)
	assert.True(t, group.IsMember(bob))
	assert.Len(t, group.Members, 2)
	assert.True(t, group.IsAdmin(alice))
	assert.Equal(t, int64(4), group.Version)
}

func TestScanNoRows(t *testing.T) {
	_, err := scanGroup(fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = scanDirect(fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = scanUser(fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestScanUser(t *testing.T) {
	id, friend := uuid.New(), uuid.New()
	now := time.Now().UTC()

	user, err := scanUser(fakeRow{values: []any{
		id, "alice@example.com", []string{friend.String(), "garbage"}, now,
	}})

	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice@example.com", user.Label)
	assert.Equal(t, []uuid.UUID{friend}, user.Tagged.Sorted())
	assert.Equal(t, now, user.CreatedAt)
}

func TestScanDirect(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	conv := domain.NewDirectConversation(a, b, time.Now())

	got, err := scanDirect(fakeRow{values: []any{
		conv.ID, conv.Key, conv.Participants[0], conv.Participants[1], conv.CreatedAt,
	}})

	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.True(t, got.HasParticipant(a))
	assert.True(t, got.HasParticipant(b))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetryable(errors.New("connection reset")))
}

func TestObserveClassifiesErrors(t *testing.T) {
	assert.NoError(t, observe(nil, "get group", time.Now(), nil))

	err := observe(nil, "get group", time.Now(), errors.New("connection reset"))
	assert.Equal(t, apperrors.ErrCodeTransient, apperrors.CodeOf(err))

	err = observe(nil, "get group", time.Now(), apperrors.NotFoundError("group"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
