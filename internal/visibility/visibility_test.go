package visibility

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository/memory"
	apperrors "chatcore-backend/pkg/errors"
)

// MockPublisher is a mock implementation of Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event *domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func storeViewOnce(t *testing.T, repo *memory.MessageRepository, sender uuid.UUID) *domain.Message {
	t.Helper()
	msg := domain.NewMessage(domain.ConversationRef{ID: uuid.New(), Kind: domain.KindDirect},
		domain.Identity{ID: sender, Label: "alice"}, domain.TextBody{Text: "secret"}, true)
	stored, err := repo.Append(context.Background(), msg)
	require.NoError(t, err)
	return stored
}

func TestRenderTextViewOnceLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMessageRepository()
	engine := NewEngine(repo, nil, nil)
	sender, viewer := uuid.New(), uuid.New()
	msg := storeViewOnce(t, repo, sender)

	// Before marking both see the text
	assert.Equal(t, Visible, RenderText(msg, viewer).State)
	assert.Equal(t, "secret", RenderText(msg, viewer).Text)

	_, err := engine.MarkViewed(ctx, msg.ConversationID, msg.ID, viewer)
	require.NoError(t, err)

	current, err := repo.Get(ctx, msg.ConversationID, msg.ID)
	require.NoError(t, err)

	hidden := RenderText(current, viewer)
	assert.Equal(t, Hidden, hidden.State)
	assert.Equal(t, "**", hidden.Text)

	// Sender sees it forever
	own := RenderText(current, sender)
	assert.Equal(t, Visible, own.State)
	assert.Equal(t, "secret", own.Text)

	// Never reverts
	_, err = engine.MarkViewed(ctx, msg.ConversationID, msg.ID, viewer)
	require.NoError(t, err)
	current, _ = repo.Get(ctx, msg.ConversationID, msg.ID)
	assert.Equal(t, Hidden, RenderText(current, viewer).State)
}

func TestMarkViewedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMessageRepository()
	pub := new(MockPublisher)
	engine := NewEngine(repo, pub, nil)
	viewer := uuid.New()
	msg := storeViewOnce(t, repo, uuid.New())

	// Setup expectations: exactly one view event
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e *domain.Event) bool {
		return e.Type == domain.EventMessageViewed && *e.MessageID == msg.ID && e.ActorID == viewer
	})).Return(nil).Once()

	// Execute
	first, err := engine.MarkViewed(ctx, msg.ConversationID, msg.ID, viewer)
	require.NoError(t, err)
	second, err := engine.MarkViewed(ctx, msg.ConversationID, msg.ID, viewer)
	require.NoError(t, err)

	// Assert
	assert.True(t, first)
	assert.False(t, second)
	stored, _ := repo.Get(ctx, msg.ConversationID, msg.ID)
	assert.Len(t, stored.ViewedBy, 1)
	pub.AssertExpectations(t)
}

func TestConcurrentMarkViewedGrowsOnce(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMessageRepository()
	engine := NewEngine(repo, nil, nil)
	viewer := uuid.New()
	msg := storeViewOnce(t, repo, uuid.New())

	var wg sync.WaitGroup
	var mu sync.Mutex
	grown := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grew, err := engine.MarkViewed(ctx, msg.ConversationID, msg.ID, viewer)
			assert.NoError(t, err)
			if grew {
				mu.Lock()
				grown++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, grown)
}

func TestMarkViewedSkipsIneligible(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMessageRepository()
	engine := NewEngine(repo, nil, nil)
	sender := uuid.New()

	// Sender never consumes their own message
	own := storeViewOnce(t, repo, sender)
	grew, err := engine.MarkViewed(ctx, own.ConversationID, own.ID, sender)
	require.NoError(t, err)
	assert.False(t, grew)

	// Regular messages ignore viewers
	plain := domain.NewMessage(domain.ConversationRef{ID: uuid.New(), Kind: domain.KindGroup},
		domain.Identity{ID: sender, Label: "alice"}, domain.TextBody{Text: "hi"}, false)
	stored, err := repo.Append(ctx, plain)
	require.NoError(t, err)
	grew, err = engine.MarkViewed(ctx, stored.ConversationID, stored.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, grew)

	_, err = engine.MarkViewed(ctx, uuid.New(), uuid.New(), sender)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMarkRenderedMarksOnlyUnseen(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMessageRepository()
	engine := NewEngine(repo, nil, nil)
	sender, viewer := uuid.New(), uuid.New()
	conv := domain.ConversationRef{ID: uuid.New(), Kind: domain.KindDirect}

	for _, viewOnce := range []bool{true, false, true} {
		_, err := repo.Append(ctx, domain.NewMessage(conv, domain.Identity{ID: sender, Label: "alice"},
			domain.TextBody{Text: "x"}, viewOnce))
		require.NoError(t, err)
	}
	msgs, _ := repo.List(ctx, conv.ID)

	// The first render shows everything, then consumes the view-once ones
	rendered := RenderAll(msgs, viewer, DefaultOptions())
	for _, r := range rendered {
		assert.Equal(t, Visible, r.State)
	}
	marked, err := engine.MarkRendered(ctx, msgs, viewer)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	// A duplicate delivery of the same snapshot marks nothing new
	marked, err = engine.MarkRendered(ctx, msgs, viewer)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	msgs, _ = repo.List(ctx, conv.ID)
	rendered = RenderAll(msgs, viewer, Options{Marker: "[hidden]"})
	assert.Equal(t, "[hidden]", rendered[0].Text)
	assert.Equal(t, "x", rendered[1].Text)
	assert.Equal(t, Hidden, rendered[2].State)
}

func TestRenderAttachment(t *testing.T) {
	msg := domain.NewMessage(domain.ConversationRef{ID: uuid.New(), Kind: domain.KindGroup},
		domain.Identity{ID: uuid.New(), Label: "alice"},
		domain.AttachmentBody{URL: "http://blobs/a.pdf", Filename: "a.pdf"}, false)

	r := RenderText(msg, uuid.New())

	assert.Equal(t, domain.BodyAttachment, r.Type)
	require.NotNil(t, r.Attachment)
	assert.Equal(t, "http://blobs/a.pdf", r.Attachment.URL)
	assert.Equal(t, "a.pdf", r.Text)
}
