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

var groupPrefix = []byte("g/")

// GroupRepository keeps groups as JSON documents. Mutations hold a repository
// lock, so changes to any group apply one after another.
type GroupRepository struct {
	db      *pebble.DB
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// NewGroupRepository creates a new GroupRepository
func NewGroupRepository(db *pebble.DB, m *metrics.Metrics) *GroupRepository {
	return &GroupRepository{db: db, metrics: m}
}

// Create stores a new group
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) (err error) {
	defer func(start time.Time) { err = observe(r.metrics, "create group", start, err) }(time.Now())

	r.mu.Lock()
	defer r.mu.Unlock()

	var existing domain.Group
	found, err := getJSON(r.db, groupKey(group.ID), &existing)
	if err != nil {
		return err
	}
	if found {
		return apperrors.ValidationError("group already exists")
	}
	return r.put(group)
}

// Get retrieves a group by ID
func (r *GroupRepository) Get(ctx context.Context, groupID uuid.UUID) (group *domain.Group, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "get group", start, err) }(time.Now())
	return r.get(groupID)
}

// Mutate applies fn to the stored group and writes it back with a bumped version.
// Errors returned by fn leave the group untouched and are returned unchanged.
func (r *GroupRepository) Mutate(ctx context.Context, groupID uuid.UUID, fn func(group *domain.Group) error) (*domain.Group, error) {
	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	group, err := r.get(groupID)
	if err != nil {
		return nil, observe(r.metrics, "mutate group", start, err)
	}
	if err := fn(group); err != nil {
		r.metrics.RecordStoreOp(backend, "mutate group", time.Since(start), nil)
		return nil, err
	}
	group.Version++

	if err := r.put(group); err != nil {
		return nil, observe(r.metrics, "mutate group", start, err)
	}
	r.metrics.RecordStoreOp(backend, "mutate group", time.Since(start), nil)
	return group, nil
}

// ListByMember returns the groups userID belongs to, newest first
func (r *GroupRepository) ListByMember(ctx context.Context, userID uuid.UUID) (groups []*domain.Group, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list member groups", start, err) }(time.Now())
	return r.filter(func(g *domain.Group) bool { return g.IsMember(userID) })
}

// ListPublic returns every public group, newest first
func (r *GroupRepository) ListPublic(ctx context.Context) (groups []*domain.Group, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list public groups", start, err) }(time.Now())
	return r.filter(func(g *domain.Group) bool { return g.IsPublic() })
}

func (r *GroupRepository) filter(keep func(g *domain.Group) bool) ([]*domain.Group, error) {
	var groups []*domain.Group
	err := scanPrefix(r.db, groupPrefix, func(_, value []byte) error {
		var g domain.Group
		if err := json.Unmarshal(value, &g); err != nil {
			return err
		}
		if keep(&g) {
			groups = append(groups, &g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].CreatedAt.After(groups[j].CreatedAt) })
	return groups, nil
}

func (r *GroupRepository) get(groupID uuid.UUID) (*domain.Group, error) {
	var group domain.Group
	found, err := getJSON(r.db, groupKey(groupID), &group)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NotFoundError("group")
	}
	if group.Members == nil {
		group.Members = domain.NewIDSet()
	}
	if group.Admins == nil {
		group.Admins = domain.NewIDSet()
	}
	return &group, nil
}

func (r *GroupRepository) put(group *domain.Group) error {
	data, err := json.Marshal(group)
	if err != nil {
		return err
	}
	return r.db.Set(groupKey(group.ID), data, pebble.Sync)
}

func groupKey(id uuid.UUID) []byte {
	return append(append([]byte(nil), groupPrefix...), id.String()...)
}
