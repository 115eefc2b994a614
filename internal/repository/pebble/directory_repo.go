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

var directPrefix = []byte("d/")

// DirectoryRepository keeps direct conversation records
type DirectoryRepository struct {
	db      *pebble.DB
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// NewDirectoryRepository creates a new DirectoryRepository
func NewDirectoryRepository(db *pebble.DB, m *metrics.Metrics) *DirectoryRepository {
	return &DirectoryRepository{db: db, metrics: m}
}

// CreateIfAbsent stores conv unless its ID exists and returns the stored record
func (r *DirectoryRepository) CreateIfAbsent(ctx context.Context, conv *domain.DirectConversation) (stored *domain.DirectConversation, created bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "create direct conversation", start, err) }(time.Now())

	r.mu.Lock()
	defer r.mu.Unlock()

	var existing domain.DirectConversation
	found, err := getJSON(r.db, directKey(conv.ID), &existing)
	if err != nil {
		return nil, false, err
	}
	if found {
		return &existing, false, nil
	}

	data, err := json.Marshal(conv)
	if err != nil {
		return nil, false, err
	}
	if err := r.db.Set(directKey(conv.ID), data, pebble.Sync); err != nil {
		return nil, false, err
	}
	c := *conv
	return &c, true, nil
}

// Get retrieves a direct conversation by ID
func (r *DirectoryRepository) Get(ctx context.Context, conversationID uuid.UUID) (conv *domain.DirectConversation, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "get direct conversation", start, err) }(time.Now())

	var c domain.DirectConversation
	found, err := getJSON(r.db, directKey(conversationID), &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NotFoundError("conversation")
	}
	return &c, nil
}

// ListByParticipant returns the direct conversations of userID, newest first
func (r *DirectoryRepository) ListByParticipant(ctx context.Context, userID uuid.UUID) (convs []*domain.DirectConversation, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list direct conversations", start, err) }(time.Now())

	err = scanPrefix(r.db, directPrefix, func(_, value []byte) error {
		var c domain.DirectConversation
		if err := json.Unmarshal(value, &c); err != nil {
			return err
		}
		if c.HasParticipant(userID) {
			convs = append(convs, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].CreatedAt.After(convs[j].CreatedAt) })
	return convs, nil
}

func directKey(id uuid.UUID) []byte {
	return append(append([]byte(nil), directPrefix...), id.String()...)
}
