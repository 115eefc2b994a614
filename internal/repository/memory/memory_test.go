package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

func textMessage(conv uuid.UUID, sender uuid.UUID, text string) *domain.Message {
	return domain.NewMessage(domain.ConversationRef{ID: conv, Kind: domain.KindGroup},
		domain.Identity{ID: sender, Label: "sender"}, domain.TextBody{Text: text}, false)
}

func TestAppendAssignsStrictlyIncreasingSeq(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()
	conv := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := repo.Append(ctx, textMessage(conv, uuid.New(), "hi"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	msgs, err := repo.List(ctx, conv)
	require.NoError(t, err)
	require.Len(t, msgs, 200)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}
}

func TestSequencesArePerConversation(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()

	a, err := repo.Append(ctx, textMessage(uuid.New(), uuid.New(), "a"))
	require.NoError(t, err)
	b, err := repo.Append(ctx, textMessage(uuid.New(), uuid.New(), "b"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(1), b.Seq)
}

func TestAddViewerIsIdempotent(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()
	conv, viewer := uuid.New(), uuid.New()
	msg, err := repo.Append(ctx, textMessage(conv, uuid.New(), "secret"))
	require.NoError(t, err)

	grew, err := repo.AddViewer(ctx, conv, msg.ID, viewer)
	require.NoError(t, err)
	assert.True(t, grew)

	grew, err = repo.AddViewer(ctx, conv, msg.ID, viewer)
	require.NoError(t, err)
	assert.False(t, grew)

	stored, err := repo.Get(ctx, conv, msg.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ViewedBy, 1)

	_, err = repo.AddViewer(ctx, conv, uuid.New(), viewer)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListReturnsCopies(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()
	conv := uuid.New()
	_, err := repo.Append(ctx, textMessage(conv, uuid.New(), "x"))
	require.NoError(t, err)

	msgs, _ := repo.List(ctx, conv)
	msgs[0].ViewedBy.Add(uuid.New())

	again, _ := repo.List(ctx, conv)
	assert.Empty(t, again[0].ViewedBy)
}

func TestGroupMutateSerializesWriters(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()
	g := domain.NewGroup("team", domain.VisibilityPrivate, uuid.New(), time.Now())
	require.NoError(t, repo.Create(ctx, g))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, g.ID, func(group *domain.Group) error {
				group.Members.Add(uuid.New())
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Members, 51)
	assert.Equal(t, int64(51), stored.Version)
}

func TestGroupMutateErrorLeavesGroupUntouched(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()
	g := domain.NewGroup("team", domain.VisibilityPrivate, uuid.New(), time.Now())
	require.NoError(t, repo.Create(ctx, g))

	_, err := repo.Mutate(ctx, g.ID, func(group *domain.Group) error {
		group.Members.Add(uuid.New())
		return apperrors.ForbiddenError("no")
	})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	stored, _ := repo.Get(ctx, g.ID)
	assert.Len(t, stored.Members, 1)
	assert.Equal(t, int64(1), stored.Version)

	_, err = repo.Mutate(ctx, uuid.New(), func(*domain.Group) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGroupListings(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()
	user := uuid.New()
	pub := domain.NewGroup("pub", domain.VisibilityPublic, uuid.New(), time.Now())
	mine := domain.NewGroup("mine", domain.VisibilityPrivate, user, time.Now())
	require.NoError(t, repo.Create(ctx, pub))
	require.NoError(t, repo.Create(ctx, mine))

	public, err := repo.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, pub.ID, public[0].ID)

	member, err := repo.ListByMember(ctx, user)
	require.NoError(t, err)
	require.Len(t, member, 1)
	assert.Equal(t, mine.ID, member[0].ID)
}

func TestCreateIfAbsentHasOneWinner(t *testing.T) {
	repo := NewDirectoryRepository()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	var created sync.Map
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := domain.NewDirectConversation(a, b, time.Now().Add(time.Duration(i)*time.Second))
			_, ok, err := repo.CreateIfAbsent(ctx, conv)
			assert.NoError(t, err)
			if ok {
				created.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	created.Range(func(_, _ any) bool { winners++; return true })
	assert.Equal(t, 1, winners)

	list, err := repo.ListByParticipant(ctx, b)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCallSessionSignals(t *testing.T) {
	repo := NewCallSessionRepository()
	ctx := context.Background()
	s := &domain.CallSession{ID: uuid.New(), Offerer: uuid.New(), Answerer: uuid.New()}
	require.NoError(t, repo.Save(ctx, s))

	require.NoError(t, repo.SetSignal(ctx, s.ID, domain.RoleAnswerer, "answer"))
	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "answer", got.AnswererSignal)

	require.NoError(t, repo.Delete(ctx, s.ID))
	_, err = repo.Get(ctx, s.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.SetSignal(ctx, s.ID, domain.RoleOfferer, "x"), apperrors.ErrNotFound)
}

func TestPresenceCountsConnections(t *testing.T) {
	repo := NewPresenceRepository()
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, repo.SetOnline(ctx, user))
	require.NoError(t, repo.SetOnline(ctx, user))
	require.NoError(t, repo.SetOffline(ctx, user))

	online, _ := repo.IsOnline(ctx, user)
	assert.True(t, online)

	require.NoError(t, repo.SetOffline(ctx, user))
	online, _ = repo.IsOnline(ctx, user)
	assert.False(t, online)
}

func TestUserCreateIfAbsentKeepsFirstRecord(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	alice := domain.Identity{ID: uuid.New(), Label: "alice@example.com"}
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, created, err := repo.CreateIfAbsent(ctx, domain.NewUser(alice, first))
	require.NoError(t, err)
	assert.True(t, created)
	_, err = repo.AddTagged(ctx, alice.ID, uuid.New())
	require.NoError(t, err)

	// A second visit never resets the record
	stored, created, err := repo.CreateIfAbsent(ctx, domain.NewUser(alice, first.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, stored.CreatedAt)
	assert.Len(t, stored.Tagged, 1)
}

func TestUserTaggedIsASet(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	_, _, err := repo.CreateIfAbsent(ctx, domain.NewUser(domain.Identity{ID: alice}, time.Now()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddTagged(ctx, alice, bob)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	user, err := repo.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob}, user.Tagged.Sorted())

	removed, err := repo.RemoveTagged(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveTagged(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = repo.AddTagged(ctx, uuid.New(), bob)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
