package cassandra

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/metrics"
)

const backend = "cassandra"

const messageColumns = `conversation_id, seq, message_id, kind, sender_id, sender_label, body, view_once, viewed_by, sent_at`

// Sequencer hands out strictly increasing per-conversation sequence numbers
type Sequencer interface {
	Next(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

// MessageRepository handles message storage in Cassandra
type MessageRepository struct {
	session   *gocql.Session
	sequencer Sequencer
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session, sequencer Sequencer, m *metrics.Metrics) *MessageRepository {
	return &MessageRepository{session: session, sequencer: sequencer, metrics: m, now: time.Now}
}

// Append assigns the next sequence number and a timestamp, then inserts the message.
// A failed insert leaves a gap in the sequence; order is still preserved.
func (r *MessageRepository) Append(ctx context.Context, msg *domain.Message) (stored *domain.Message, err error) {
	defer func(start time.Time) { err = r.observe("append message", start, err) }(time.Now())

	seq, err := r.sequencer.Next(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	body, err := domain.EncodeBody(msg.Body)
	if err != nil {
		return nil, err
	}

	stored = msg.Clone()
	stored.Seq = seq
	stored.SentAt = r.now().UTC().Truncate(time.Millisecond)
	if stored.ViewedBy == nil {
		stored.ViewedBy = domain.NewIDSet()
	}

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gocql.UUID(stored.ConversationID),
		stored.Seq,
		gocql.UUID(stored.ID),
		string(stored.Kind),
		gocql.UUID(stored.SenderID),
		stored.SenderLabel,
		string(body),
		stored.ViewOnce,
		toCQL(stored.ViewedBy),
		stored.SentAt,
	)
	batch.Query(`INSERT INTO message_ids (conversation_id, message_id, seq) VALUES (?, ?, ?)`,
		gocql.UUID(stored.ConversationID),
		gocql.UUID(stored.ID),
		stored.Seq,
	)
	if err := r.session.ExecuteBatch(batch); err != nil {
		return nil, err
	}
	return stored, nil
}

// List returns the conversation in sequence order
func (r *MessageRepository) List(ctx context.Context, conversationID uuid.UUID) (msgs []*domain.Message, err error) {
	defer func(start time.Time) { err = r.observe("list messages", start, err) }(time.Now())

	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY seq ASC`
	iter := r.session.Query(query, gocql.UUID(conversationID)).WithContext(ctx).Iter()

	msgs = make([]*domain.Message, 0, iter.NumRows())
	for {
		msg, ok, err := scanMessage(iter)
		if err != nil {
			_ = iter.Close()
			return nil, err
		}
		if !ok {
			break
		}
		msgs = append(msgs, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Get retrieves one message of a conversation
func (r *MessageRepository) Get(ctx context.Context, conversationID, messageID uuid.UUID) (msg *domain.Message, err error) {
	defer func(start time.Time) { err = r.observe("get message", start, err) }(time.Now())

	seq, err := r.seqOf(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	return r.getBySeq(ctx, conversationID, seq)
}

// AddViewer unions viewer into viewed_by and reports whether it was absent.
// The set union itself is atomic; concurrent first views may both report growth.
func (r *MessageRepository) AddViewer(ctx context.Context, conversationID, messageID, viewer uuid.UUID) (grew bool, err error) {
	defer func(start time.Time) { err = r.observe("add viewer", start, err) }(time.Now())

	seq, err := r.seqOf(ctx, conversationID, messageID)
	if err != nil {
		return false, err
	}
	msg, err := r.getBySeq(ctx, conversationID, seq)
	if err != nil {
		return false, err
	}
	if msg.ViewedBy.Has(viewer) {
		return false, nil
	}

	update := `UPDATE messages SET viewed_by = viewed_by + ? WHERE conversation_id = ? AND seq = ?`
	if err := r.session.Query(update,
		[]gocql.UUID{gocql.UUID(viewer)},
		gocql.UUID(conversationID),
		seq,
	).WithContext(ctx).Exec(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *MessageRepository) seqOf(ctx context.Context, conversationID, messageID uuid.UUID) (int64, error) {
	var seq int64
	err := r.session.Query(`SELECT seq FROM message_ids WHERE conversation_id = ? AND message_id = ?`,
		gocql.UUID(conversationID),
		gocql.UUID(messageID),
	).WithContext(ctx).Scan(&seq)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return 0, apperrors.NotFoundError("message")
		}
		return 0, err
	}
	return seq, nil
}

func (r *MessageRepository) getBySeq(ctx context.Context, conversationID uuid.UUID, seq int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? AND seq = ?`
	iter := r.session.Query(query, gocql.UUID(conversationID), seq).WithContext(ctx).Iter()

	msg, ok, err := scanMessage(iter)
	if closeErr := iter.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NotFoundError("message")
	}
	return msg, nil
}

func (r *MessageRepository) observe(op string, start time.Time, err error) error {
	r.metrics.RecordStoreOp(backend, op, time.Since(start), err)
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	return apperrors.TransientError(op, err)
}

// messageRow is the scanned form of one messages row
type messageRow struct {
	conversationID gocql.UUID
	seq            int64
	messageID      gocql.UUID
	kind           string
	senderID       gocql.UUID
	senderLabel    string
	body           string
	viewOnce       bool
	viewedBy       []gocql.UUID
	sentAt         time.Time
}

func scanMessage(iter *gocql.Iter) (*domain.Message, bool, error) {
	var row messageRow
	if !iter.Scan(
		&row.conversationID,
		&row.seq,
		&row.messageID,
		&row.kind,
		&row.senderID,
		&row.senderLabel,
		&row.body,
		&row.viewOnce,
		&row.viewedBy,
		&row.sentAt,
	) {
		return nil, false, nil
	}
	msg, err := row.message()
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

func (row *messageRow) message() (*domain.Message, error) {
	body, err := domain.DecodeBody([]byte(row.body))
	if err != nil {
		return nil, err
	}
	return &domain.Message{
		ID:             uuid.UUID(row.messageID),
		ConversationID: uuid.UUID(row.conversationID),
		Kind:           domain.ConversationKind(row.kind),
		SenderID:       uuid.UUID(row.senderID),
		SenderLabel:    row.senderLabel,
		Body:           body,
		Seq:            row.seq,
		SentAt:         row.sentAt.UTC(),
		ViewOnce:       row.viewOnce,
		ViewedBy:       fromCQL(row.viewedBy),
	}, nil
}

func toCQL(set domain.IDSet) []gocql.UUID {
	out := make([]gocql.UUID, 0, len(set))
	for _, id := range set.Sorted() {
		out = append(out, gocql.UUID(id))
	}
	return out
}

func fromCQL(ids []gocql.UUID) domain.IDSet {
	set := domain.NewIDSet()
	for _, id := range ids {
		set.Add(uuid.UUID(id))
	}
	return set
}
