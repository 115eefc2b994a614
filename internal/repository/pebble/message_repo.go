package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/metrics"
)

// MessageRepository keeps the message log. Writes are serialized; the store
// serves a single node.
type MessageRepository struct {
	db      *pebble.DB
	metrics *metrics.Metrics
	mu      sync.Mutex
	now     func() time.Time
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *pebble.DB, m *metrics.Metrics) *MessageRepository {
	return &MessageRepository{db: db, metrics: m, now: time.Now}
}

// Append assigns the next sequence number and a timestamp, then stores the message
func (r *MessageRepository) Append(ctx context.Context, msg *domain.Message) (stored *domain.Message, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "append message", start, err) }(time.Now())

	r.mu.Lock()
	defer r.mu.Unlock()

	conv := []byte(msg.ConversationID.String())
	last, err := r.lastSeq(conv)
	if err != nil {
		return nil, err
	}

	stored = msg.Clone()
	stored.Seq = last + 1
	stored.SentAt = r.now().UTC()
	if stored.ViewedBy == nil {
		stored.ViewedBy = domain.NewIDSet()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	seq := encodeSeq(stored.Seq)

	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key([]byte("m"), conv, seq), data, nil); err != nil {
		return nil, err
	}
	if err := batch.Set(key([]byte("i"), conv, []byte(stored.ID.String())), seq, nil); err != nil {
		return nil, err
	}
	if err := batch.Set(key([]byte("s"), conv), seq, nil); err != nil {
		return nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	return stored, nil
}

// List returns the conversation in sequence order
func (r *MessageRepository) List(ctx context.Context, conversationID uuid.UUID) (msgs []*domain.Message, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list messages", start, err) }(time.Now())

	prefix := key([]byte("m"), []byte(conversationID.String()), nil)
	msgs = []*domain.Message{}
	err = scanPrefix(r.db, prefix, func(_, value []byte) error {
		var msg domain.Message
		if err := json.Unmarshal(value, &msg); err != nil {
			return err
		}
		msgs = append(msgs, &msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Get retrieves one message of a conversation
func (r *MessageRepository) Get(ctx context.Context, conversationID, messageID uuid.UUID) (msg *domain.Message, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "get message", start, err) }(time.Now())

	msg, _, err = r.get(conversationID, messageID)
	return msg, err
}

// AddViewer unions viewer into the viewed set and reports whether it grew
func (r *MessageRepository) AddViewer(ctx context.Context, conversationID, messageID, viewer uuid.UUID) (grew bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "add viewer", start, err) }(time.Now())

	r.mu.Lock()
	defer r.mu.Unlock()

	msg, msgKey, err := r.get(conversationID, messageID)
	if err != nil {
		return false, err
	}
	if !msg.ViewedBy.Add(viewer) {
		return false, nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	if err := r.db.Set(msgKey, data, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

func (r *MessageRepository) get(conversationID, messageID uuid.UUID) (*domain.Message, []byte, error) {
	conv := []byte(conversationID.String())

	seq, closer, err := r.db.Get(key([]byte("i"), conv, []byte(messageID.String())))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil, apperrors.NotFoundError("message")
		}
		return nil, nil, err
	}
	msgKey := key([]byte("m"), conv, append([]byte(nil), seq...))
	closer.Close()

	var msg domain.Message
	found, err := getJSON(r.db, msgKey, &msg)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, apperrors.NotFoundError("message")
	}
	if msg.ViewedBy == nil {
		msg.ViewedBy = domain.NewIDSet()
	}
	return &msg, msgKey, nil
}

func (r *MessageRepository) lastSeq(conv []byte) (int64, error) {
	data, closer, err := r.db.Get(key([]byte("s"), conv))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	return decodeSeq(data), nil
}
