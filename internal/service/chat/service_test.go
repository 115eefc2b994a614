package chat

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/moderation"
	"chatcore-backend/internal/notifier"
	"chatcore-backend/internal/repository/memory"
	"chatcore-backend/internal/service/directory"
	"chatcore-backend/internal/service/membership"
	"chatcore-backend/internal/service/storage"
	"chatcore-backend/internal/visibility"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/push"
)

// MockPusher is a mock implementation of Pusher
type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) NotifyUsers(ctx context.Context, notification *push.Notification, userIDs []uuid.UUID) error {
	args := m.Called(ctx, notification, userIDs)
	return args.Error(0)
}

type fixture struct {
	svc        *Service
	messages   *memory.MessageRepository
	groups     *membership.Service
	directs    *directory.Service
	presence   *memory.PresenceRepository
	blobs      *storage.MemoryStore
	pusher     *MockPusher
	alice, bob domain.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	messages := memory.NewMessageRepository()
	stream := notifier.New(notifier.NewLocalBroker(), messages, nil)
	blobs := storage.NewMemoryStore("http://blobs.local")
	f := &fixture{
		messages: messages,
		groups:   membership.NewService(memory.NewGroupRepository(), nil, nil, nil),
		directs:  directory.NewService(memory.NewDirectoryRepository(), nil, nil),
		presence: memory.NewPresenceRepository(),
		blobs:    blobs,
		pusher:   &MockPusher{},
		alice:    domain.Identity{ID: uuid.New(), Label: "alice"},
		bob:      domain.Identity{ID: uuid.New(), Label: "bob"},
	}
	f.svc = NewService(Dependencies{
		Messages:    messages,
		Gate:        moderation.NewGate([]string{"badword", "spam"}),
		Groups:      f.groups,
		Directs:     f.directs,
		Visibility:  visibility.NewEngine(messages, stream, nil),
		Stream:      stream,
		Attachments: storage.NewService(blobs, 0),
		Presence:    f.presence,
		Pusher:      f.pusher,
	})
	return f
}

// group creates a group of alice and bob
func (f *fixture) group(t *testing.T) domain.ConversationRef {
	t.Helper()
	ctx := context.Background()
	g, err := f.groups.CreateGroup(ctx, "team", domain.VisibilityPrivate, f.alice.ID)
	require.NoError(t, err)
	_, err = f.groups.AddMember(ctx, g.ID, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	return domain.ConversationRef{ID: g.ID, Kind: domain.KindGroup}
}

func (f *fixture) direct(t *testing.T) domain.ConversationRef {
	t.Helper()
	conv, err := f.directs.ResolveDirect(context.Background(), f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	return conv.Ref()
}

func (f *fixture) online(t *testing.T, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.presence.SetOnline(context.Background(), id))
	}
}

func TestSendText(t *testing.T) {
	f := newFixture(t)
	ref := f.group(t)
	f.online(t, f.bob.ID)

	// Execute
	msg, err := f.svc.SendText(context.Background(), &SendTextInput{
		Conversation: ref,
		Sender:       f.alice,
		Text:         "hello team",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, "alice", msg.SenderLabel)
	assert.Equal(t, domain.TextBody{Text: "hello team"}, msg.Body)

	stored, err := f.messages.List(context.Background(), ref.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, msg.ID, stored[0].ID)
}

func TestSendText_EmptyBodyNotPersisted(t *testing.T) {
	f := newFixture(t)
	ref := f.group(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.SendText(context.Background(), &SendTextInput{Conversation: ref, Sender: f.alice, Text: text})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}

	_, err := f.svc.SendText(context.Background(), &SendTextInput{
		Conversation: ref,
		Sender:       f.alice,
		Text:         strings.Repeat("a", constants.MaxMessageLength+1),
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	stored, err := f.messages.List(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSendText_BlockedInGroupLeavesWarning(t *testing.T) {
	f := newFixture(t)
	ref := f.group(t)

	// Execute
	_, err := f.svc.SendText(context.Background(), &SendTextInput{
		Conversation: ref,
		Sender:       f.alice,
		Text:         "this is SPAM",
	})

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrModerationBlocked)

	stored, err := f.messages.List(context.Background(), ref.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	warning := stored[0]
	assert.True(t, warning.IsSystem())
	assert.Equal(t, constants.SystemSenderLabel, warning.SenderLabel)
	assert.Equal(t, domain.TextBody{Text: "Warning: Prohibited content was attempted by alice"}, warning.Body)
	assert.False(t, warning.ViewOnce)
}

func TestSendText_BlockedInDirectLeavesNothing(t *testing.T) {
	f := newFixture(t)
	ref := f.direct(t)

	_, err := f.svc.SendText(context.Background(), &SendTextInput{Conversation: ref, Sender: f.alice, Text: "badword"})

	assert.ErrorIs(t, err, apperrors.ErrModerationBlocked)
	stored, err := f.messages.List(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSendText_NonParticipantForbidden(t *testing.T) {
	f := newFixture(t)
	mallory := domain.Identity{ID: uuid.New(), Label: "mallory"}

	for _, ref := range []domain.ConversationRef{f.group(t), f.direct(t)} {
		_, err := f.svc.SendText(context.Background(), &SendTextInput{Conversation: ref, Sender: mallory, Text: "hi"})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)

		_, err = f.svc.History(context.Background(), ref, mallory.ID, false, visibility.DefaultOptions())
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	}
}

func TestSendText_UnknownConversation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendText(context.Background(), &SendTextInput{
		Conversation: domain.ConversationRef{ID: uuid.New(), Kind: domain.KindGroup},
		Sender:       f.alice,
		Text:         "hi",
	})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHistory_ViewOnceConsumedAfterRender(t *testing.T) {
	f := newFixture(t)
	ref := f.direct(t)
	f.online(t, f.bob.ID)
	ctx := context.Background()

	msg, err := f.svc.SendText(ctx, &SendTextInput{Conversation: ref, Sender: f.alice, Text: "secret", ViewOnce: true})
	require.NoError(t, err)

	// First read shows the text and consumes it
	first, err := f.svc.History(ctx, ref, f.bob.ID, true, visibility.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, visibility.Visible, first[0].State)
	assert.Equal(t, "secret", first[0].Text)

	// Second read is redacted
	second, err := f.svc.History(ctx, ref, f.bob.ID, true, visibility.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, visibility.Hidden, second[0].State)
	assert.Equal(t, constants.RedactionMarker, second[0].Text)

	// The sender always sees it
	own, err := f.svc.History(ctx, ref, f.alice.ID, true, visibility.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "secret", own[0].Text)

	stored, err := f.messages.Get(ctx, ref.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.bob.ID}, stored.ViewedBy.Sorted())
}

func TestHistory_WithoutMarkLeavesViewOnce(t *testing.T) {
	f := newFixture(t)
	ref := f.direct(t)
	f.online(t, f.bob.ID)
	ctx := context.Background()

	_, err := f.svc.SendText(ctx, &SendTextInput{Conversation: ref, Sender: f.alice, Text: "secret", ViewOnce: true})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rendered, err := f.svc.History(ctx, ref, f.bob.ID, false, visibility.DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, visibility.Visible, rendered[0].State)
	}
}

func TestMarkViewed(t *testing.T) {
	f := newFixture(t)
	ref := f.group(t)
	f.online(t, f.bob.ID)
	ctx := context.Background()

	msg, err := f.svc.SendText(ctx, &SendTextInput{Conversation: ref, Sender: f.alice, Text: "once", ViewOnce: true})
	require.NoError(t, err)

	grew, err := f.svc.MarkViewed(ctx, ref, msg.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, grew)

	grew, err = f.svc.MarkViewed(ctx, ref, msg.ID, f.bob.ID)
	require.NoError(t, err)
	assert.False(t, grew)

	_, err = f.svc.MarkViewed(ctx, ref, msg.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestSendAttachment(t *testing.T) {
	f := newFixture(t)
	ref := f.group(t)
	f.online(t, f.bob.ID)
	data := []byte("%PDF-1.4")

	// Execute
	msg, err := f.svc.SendAttachment(context.Background(), &SendAttachmentInput{
		Conversation: ref,
		Sender:       f.alice,
		Filename:     "report.pdf",
		Reader:       bytes.NewReader(data),
		Size:         int64(len(data)),
		ContentType:  "application/pdf",
	})

	// Assert
	require.NoError(t, err)
	assert.False(t, msg.ViewOnce)
	body, ok := msg.Body.(domain.AttachmentBody)
	require.True(t, ok)
	assert.Equal(t, "report.pdf", body.Filename)
	assert.True(t, strings.HasPrefix(body.URL, "http://blobs.local/groups/"+ref.ID.String()+"/"))

	key := strings.TrimPrefix(body.URL, "http://blobs.local/")
	stored, ok := f.blobs.Object(key)
	require.True(t, ok)
	assert.Equal(t, data, stored)
}

func TestPresignedUploadFlow(t *testing.T) {
	f := newFixture(t)
	ref := f.direct(t)
	f.online(t, f.bob.ID)
	ctx := context.Background()

	ticket, err := f.svc.RequestUpload(ctx, ref, f.alice.ID, "photo.png", 4)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", ticket.Filename)

	// Completing before the client uploads fails
	_, err = f.svc.CompleteUpload(ctx, ref, f.alice, ticket.ObjectKey, "photo.png")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.blobs.Put(ctx, ticket.ObjectKey, bytes.NewReader([]byte("\x89PNG")), 4, "image/png")
	require.NoError(t, err)

	msg, err := f.svc.CompleteUpload(ctx, ref, f.alice, ticket.ObjectKey, "photo.png")
	require.NoError(t, err)
	assert.Equal(t, domain.BodyAttachment, msg.Body.Type())

	_, err = f.svc.RequestUpload(ctx, ref, uuid.New(), "photo.png", 4)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestPushOfflineParticipants(t *testing.T) {
	f := newFixture(t)
	ref := f.group(t)
	carol := uuid.New()
	_, err := f.groups.AddMember(context.Background(), ref.ID, carol, f.alice.ID)
	require.NoError(t, err)
	f.online(t, f.bob.ID)

	// Setup expectations
	sent := make(chan *push.Notification, 1)
	f.pusher.On("NotifyUsers", mock.Anything, mock.Anything, []uuid.UUID{carol}).
		Run(func(args mock.Arguments) { sent <- args.Get(1).(*push.Notification) }).
		Return(nil).Once()

	// Execute
	_, err = f.svc.SendText(context.Background(), &SendTextInput{Conversation: ref, Sender: f.alice, Text: "peek", ViewOnce: true})
	require.NoError(t, err)

	// Assert
	select {
	case n := <-sent:
		assert.Equal(t, "alice", n.Title)
		assert.NotContains(t, n.Body, "peek")
		assert.Equal(t, ref.ID.String(), n.Data["conversation_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("push notification not sent")
	}
	f.pusher.AssertExpectations(t)
}

func TestSubscribeDeliverMarks(t *testing.T) {
	f := newFixture(t)
	ref := f.direct(t)
	f.online(t, f.bob.ID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := f.svc.Subscribe(ctx, ref, f.bob.ID)
	require.NoError(t, err)
	defer sub.Close()

	initial := <-sub.C
	assert.Empty(t, initial.Messages)

	_, err = f.svc.SendText(ctx, &SendTextInput{Conversation: ref, Sender: f.alice, Text: "boo", ViewOnce: true})
	require.NoError(t, err)

	var snap *notifier.Snapshot
	require.Eventually(t, func() bool {
		select {
		case snap = <-sub.C:
		default:
		}
		return snap != nil && len(snap.Messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rendered, err := f.svc.Deliver(ctx, snap, f.bob.ID, visibility.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "boo", rendered[0].Text)

	// Redelivering the same snapshot consumes nothing new
	again, err := f.svc.Deliver(ctx, snap, f.bob.ID, visibility.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "boo", again[0].Text)

	history, err := f.svc.History(ctx, ref, f.bob.ID, false, visibility.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, visibility.Hidden, history[0].State)

	_, err = f.svc.Subscribe(ctx, ref, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
