package pebble

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

func openMem(t *testing.T) *pebble.DB {
	t.Helper()
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, []byte("m0"), upperBound([]byte("m/")))
	assert.Equal(t, []byte{0x01}, upperBound([]byte{0x00, 0xff}))
	assert.Nil(t, upperBound([]byte{0xff, 0xff}))
}

func TestMessageAppendSequencesAndLists(t *testing.T) {
	db := openMem(t)
	repo := NewMessageRepository(db, nil)
	ctx := context.Background()
	ref := domain.ConversationRef{ID: uuid.New(), Kind: domain.KindDirect}
	other := domain.ConversationRef{ID: uuid.New(), Kind: domain.KindGroup}
	sender := domain.Identity{ID: uuid.New(), Label: "alice"}

	// Interleave two conversations; 300 crosses the single byte boundary of the seq key
	for i := 0; i < 300; i++ {
		_, err := repo.Append(ctx, domain.NewMessage(ref, sender, domain.TextBody{Text: "hi"}, false))
		require.NoError(t, err)
		if i%100 == 0 {
			_, err = repo.Append(ctx, domain.NewMessage(other, sender, domain.TextBody{Text: "x"}, false))
			require.NoError(t, err)
		}
	}

	msgs, err := repo.List(ctx, ref.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 300)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
		assert.Equal(t, ref.ID, m.ConversationID)
	}

	others, err := repo.List(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, others, 3)

	empty, err := repo.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMessageConcurrentAppend(t *testing.T) {
	repo := NewMessageRepository(openMem(t), nil)
	ref := domain.ConversationRef{ID: uuid.New(), Kind: domain.KindGroup}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sender := domain.Identity{ID: uuid.New(), Label: "u"}
			_, err := repo.Append(context.Background(), domain.NewMessage(ref, sender, domain.TextBody{Text: "x"}, false))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := repo.List(context.Background(), ref.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}
}

func TestMessageAddViewer(t *testing.T) {
	repo := NewMessageRepository(openMem(t), nil)
	ctx := context.Background()
	ref := domain.ConversationRef{ID: uuid.New(), Kind: domain.KindDirect}
	viewer := uuid.New()

	msg, err := repo.Append(ctx, domain.NewMessage(ref, domain.Identity{ID: uuid.New(), Label: "a"}, domain.TextBody{Text: "once"}, true))
	require.NoError(t, err)

	grew, err := repo.AddViewer(ctx, ref.ID, msg.ID, viewer)
	require.NoError(t, err)
	assert.True(t, grew)

	grew, err = repo.AddViewer(ctx, ref.ID, msg.ID, viewer)
	require.NoError(t, err)
	assert.False(t, grew)

	got, err := repo.Get(ctx, ref.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.ViewedBy.Has(viewer))
	assert.Equal(t, domain.TextBody{Text: "once"}, got.Body)

	_, err = repo.AddViewer(ctx, ref.ID, uuid.New(), viewer)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGroupMutate(t *testing.T) {
	repo := NewGroupRepository(openMem(t), nil)
	ctx := context.Background()
	owner := uuid.New()
	group := domain.NewGroup("team", domain.VisibilityPublic, owner, time.Now())
	require.NoError(t, repo.Create(ctx, group))

	assert.ErrorIs(t, repo.Create(ctx, group), apperrors.ErrValidation)

	member := uuid.New()
	updated, err := repo.Mutate(ctx, group.ID, func(g *domain.Group) error {
		g.Members.Add(member)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	// A failing mutation leaves the stored group as it was
	_, err = repo.Mutate(ctx, group.ID, func(g *domain.Group) error {
		g.Members.Remove(member)
		return apperrors.ForbiddenError("nope")
	})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	stored, err := repo.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsMember(member))
	assert.Equal(t, int64(2), stored.Version)

	mine, err := repo.ListByMember(ctx, member)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	public, err := repo.ListPublic(ctx)
	require.NoError(t, err)
	assert.Len(t, public, 1)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDirectoryCreateIfAbsent(t *testing.T) {
	repo := NewDirectoryRepository(openMem(t), nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	first, created, err := repo.CreateIfAbsent(ctx, domain.NewDirectConversation(a, b, time.Now()))
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.CreateIfAbsent(ctx, domain.NewDirectConversation(b, a, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	convs, err := repo.ListByParticipant(ctx, b)
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserDirectory(t *testing.T) {
	repo := NewUserRepository(openMem(t), nil)
	ctx := context.Background()
	alice := domain.Identity{ID: uuid.New(), Label: "alice@example.com"}
	bob := domain.Identity{ID: uuid.New(), Label: "bob@example.com"}
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, created, err := repo.CreateIfAbsent(ctx, domain.NewUser(alice, first))
	require.NoError(t, err)
	assert.True(t, created)
	_, _, err = repo.CreateIfAbsent(ctx, domain.NewUser(bob, first.Add(time.Minute)))
	require.NoError(t, err)

	changed, err := repo.AddTagged(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.AddTagged(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	// Revisiting keeps the tagged set
	stored, created, err := repo.CreateIfAbsent(ctx, domain.NewUser(alice, first.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, stored.Tagged.Has(bob.ID))

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, alice.ID, users[0].ID)
	assert.Equal(t, "bob@example.com", users[1].Label)

	changed, err = repo.RemoveTagged(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	user, err := repo.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, user.Tagged)

	_, err = repo.RemoveTagged(ctx, uuid.New(), bob.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
