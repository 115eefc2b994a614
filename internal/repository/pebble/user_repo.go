package pebble

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/metrics"
)

var userPrefix = []byte("u/")

// UserRepository keeps the user directory. Writes hold a repository lock.
type UserRepository struct {
	db      *pebble.DB
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *pebble.DB, m *metrics.Metrics) *UserRepository {
	return &UserRepository{db: db, metrics: m}
}

// CreateIfAbsent stores user unless its id exists and returns the stored record
func (r *UserRepository) CreateIfAbsent(ctx context.Context, user *domain.User) (stored *domain.User, created bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "create user", start, err) }(time.Now())

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.get(user.ID)
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsAppError(err) {
		return nil, false, err
	}
	if err := r.put(user); err != nil {
		return nil, false, err
	}
	return user.Clone(), true, nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, userID uuid.UUID) (user *domain.User, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "get user", start, err) }(time.Now())
	return r.get(userID)
}

// List returns every user, oldest first
func (r *UserRepository) List(ctx context.Context) (users []*domain.User, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list users", start, err) }(time.Now())

	err = scanPrefix(r.db, userPrefix, func(_, value []byte) error {
		var u domain.User
		if err := json.Unmarshal(value, &u); err != nil {
			return err
		}
		users = append(users, &u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// AddTagged adds friendID to the user's tagged set
func (r *UserRepository) AddTagged(ctx context.Context, userID, friendID uuid.UUID) (changed bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "tag user", start, err) }(time.Now())
	return r.updateTagged(userID, func(tagged domain.IDSet) bool { return tagged.Add(friendID) })
}

// RemoveTagged removes friendID from the user's tagged set
func (r *UserRepository) RemoveTagged(ctx context.Context, userID, friendID uuid.UUID) (changed bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "untag user", start, err) }(time.Now())
	return r.updateTagged(userID, func(tagged domain.IDSet) bool { return tagged.Remove(friendID) })
}

func (r *UserRepository) updateTagged(userID uuid.UUID, fn func(tagged domain.IDSet) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(userID)
	if err != nil {
		return false, err
	}
	if !fn(user.Tagged) {
		return false, nil
	}
	return true, r.put(user)
}

func (r *UserRepository) get(userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	found, err := getJSON(r.db, userKey(userID), &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NotFoundError("user")
	}
	if user.Tagged == nil {
		user.Tagged = domain.NewIDSet()
	}
	return &user, nil
}

func (r *UserRepository) put(user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return r.db.Set(userKey(user.ID), data, pebble.Sync)
}

func userKey(id uuid.UUID) []byte {
	return append(append([]byte(nil), userPrefix...), id.String()...)
}
