package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
)

// conversationLog is the ordered log of one conversation
type conversationLog struct {
	mu       sync.Mutex
	seq      int64
	messages []*domain.Message
	index    map[uuid.UUID]int
}

// MessageRepository keeps one log per conversation. Appends to different
// conversations never contend.
type MessageRepository struct {
	mu   sync.RWMutex
	logs map[uuid.UUID]*conversationLog
	now  func() time.Time
}

// NewMessageRepository creates an empty message store
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		logs: make(map[uuid.UUID]*conversationLog),
		now:  time.Now,
	}
}

func (r *MessageRepository) log(conversationID uuid.UUID, create bool) *conversationLog {
	r.mu.RLock()
	l, ok := r.logs[conversationID]
	r.mu.RUnlock()
	if ok || !create {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.logs[conversationID]; ok {
		return l
	}
	l = &conversationLog{index: make(map[uuid.UUID]int)}
	r.logs[conversationID] = l
	return l
}

// Append assigns the next sequence number in arrival order.
func (r *MessageRepository) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	l := r.log(msg.ConversationID, true)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	stored := msg.Clone()
	stored.Seq = l.seq
	stored.SentAt = r.now().UTC()
	if stored.ViewedBy == nil {
		stored.ViewedBy = domain.IDSet{}
	}
	l.index[stored.ID] = len(l.messages)
	l.messages = append(l.messages, stored)

	return stored.Clone(), nil
}

// List returns copies of the log ordered by Seq
func (r *MessageRepository) List(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	l := r.log(conversationID, false)
	if l == nil {
		return []*domain.Message{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*domain.Message, len(l.messages))
	for i, m := range l.messages {
		out[i] = m.Clone()
	}
	return out, nil
}

// Get returns one message
func (r *MessageRepository) Get(ctx context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error) {
	l := r.log(conversationID, false)
	if l == nil {
		return nil, apperrors.NotFoundError("message")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[messageID]
	if !ok {
		return nil, apperrors.NotFoundError("message")
	}
	return l.messages[i].Clone(), nil
}

// AddViewer unions viewer into ViewedBy under the conversation lock
func (r *MessageRepository) AddViewer(ctx context.Context, conversationID, messageID, viewer uuid.UUID) (bool, error) {
	l := r.log(conversationID, false)
	if l == nil {
		return false, apperrors.NotFoundError("message")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[messageID]
	if !ok {
		return false, apperrors.NotFoundError("message")
	}
	return l.messages[i].ViewedBy.Add(viewer), nil
}
