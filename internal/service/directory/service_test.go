package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository/memory"
	apperrors "chatcore-backend/pkg/errors"
)

// MockDirectoryRepository is a mock implementation of DirectoryRepository
type MockDirectoryRepository struct {
	mock.Mock
}

func (m *MockDirectoryRepository) CreateIfAbsent(ctx context.Context, conv *domain.DirectConversation) (*domain.DirectConversation, bool, error) {
	args := m.Called(ctx, conv)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*domain.DirectConversation), args.Bool(1), args.Error(2)
}

func (m *MockDirectoryRepository) Get(ctx context.Context, conversationID uuid.UUID) (*domain.DirectConversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DirectConversation), args.Error(1)
}

func (m *MockDirectoryRepository) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]*domain.DirectConversation, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*domain.DirectConversation), args.Error(1)
}

func TestResolveDirectIsSymmetric(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewDirectoryRepository(), nil, nil)
	a, b := uuid.New(), uuid.New()

	ab, err := svc.ResolveDirect(ctx, a, b)
	require.NoError(t, err)
	ba, err := svc.ResolveDirect(ctx, b, a)
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, ab.CreatedAt, ba.CreatedAt)
	assert.Equal(t, domain.DirectKey(a, b), ab.Key)
}

func TestResolveDirectKeepsOriginalCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewDirectoryRepository(), nil, nil)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }
	a, b := uuid.New(), uuid.New()

	_, err := svc.ResolveDirect(ctx, a, b)
	require.NoError(t, err)

	svc.now = func() time.Time { return first.Add(time.Hour) }
	again, err := svc.ResolveDirect(ctx, b, a)
	require.NoError(t, err)

	assert.Equal(t, first, again.CreatedAt)
}

func TestResolveDirectConcurrentFirstUse(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDirectoryRepository()
	svc := NewService(repo, nil, nil)
	a, b := uuid.New(), uuid.New()

	ids := make(chan uuid.UUID, 40)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			conv, err := svc.ResolveDirect(ctx, a, b)
			assert.NoError(t, err)
			ids <- conv.ID
		}()
		go func() {
			defer wg.Done()
			conv, err := svc.ResolveDirect(ctx, b, a)
			assert.NoError(t, err)
			ids <- conv.ID
		}()
	}
	wg.Wait()
	close(ids)

	want := domain.DirectID(a, b)
	for id := range ids {
		assert.Equal(t, want, id)
	}
	list, err := repo.ListByParticipant(ctx, a)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResolveDirectValidation(t *testing.T) {
	svc := NewService(memory.NewDirectoryRepository(), nil, nil)
	a := uuid.New()

	_, err := svc.ResolveDirect(context.Background(), a, a)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.ResolveDirect(context.Background(), a, uuid.Nil)
	assert.Equal(t, apperrors.ErrCodeMissingField, apperrors.CodeOf(err))
}

func TestResolveDirectPropagatesTransientErrors(t *testing.T) {
	repo := new(MockDirectoryRepository)
	svc := NewService(repo, nil, nil)

	// Setup expectations
	repo.On("CreateIfAbsent", mock.Anything, mock.AnythingOfType("*domain.DirectConversation")).
		Return(nil, false, apperrors.TransientError("create conversation", assert.AnError))

	// Execute
	_, err := svc.ResolveDirect(context.Background(), uuid.New(), uuid.New())

	// Assert
	assert.True(t, apperrors.IsRetryable(err))
	repo.AssertExpectations(t)
}

func TestGetDirectChecksParticipants(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewDirectoryRepository(), nil, nil)
	a, b := uuid.New(), uuid.New()
	conv, err := svc.ResolveDirect(ctx, a, b)
	require.NoError(t, err)

	got, err := svc.GetDirect(ctx, conv.ID, b)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = svc.GetDirect(ctx, conv.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.GetDirect(ctx, uuid.New(), a)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
