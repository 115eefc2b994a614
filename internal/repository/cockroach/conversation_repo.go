package cockroach

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/metrics"
)

const directColumns = `conversation_id, conversation_key, participant_a, participant_b, created_at`

// ConversationRepository handles direct conversation records
type ConversationRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool, m *metrics.Metrics) *ConversationRepository {
	return &ConversationRepository{pool: pool, metrics: m}
}

// CreateIfAbsent inserts conv unless its ID already exists and returns the
// stored record. Concurrent callers all receive the first writer's record.
func (r *ConversationRepository) CreateIfAbsent(ctx context.Context, conv *domain.DirectConversation) (stored *domain.DirectConversation, created bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "create direct conversation", start, err) }(time.Now())

	insert := `
		INSERT INTO direct_conversations (` + directColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, insert,
		conv.ID,
		conv.Key,
		conv.Participants[0],
		conv.Participants[1],
		conv.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}

	stored, err = r.Get(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

// Get retrieves a direct conversation by ID
func (r *ConversationRepository) Get(ctx context.Context, conversationID uuid.UUID) (conv *domain.DirectConversation, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "get direct conversation", start, err) }(time.Now())

	query := `SELECT ` + directColumns + ` FROM direct_conversations WHERE conversation_id = $1`
	return scanDirect(r.pool.QueryRow(ctx, query, conversationID))
}

// ListByParticipant returns the direct conversations of userID, newest first
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID uuid.UUID) (convs []*domain.DirectConversation, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list direct conversations", start, err) }(time.Now())

	query := `
		SELECT ` + directColumns + ` FROM direct_conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		conv, err := scanDirect(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func scanDirect(row pgx.Row) (*domain.DirectConversation, error) {
	var conv domain.DirectConversation
	err := row.Scan(
		&conv.ID,
		&conv.Key,
		&conv.Participants[0],
		&conv.Participants[1],
		&conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundError("conversation")
		}
		return nil, err
	}
	return &conv, nil
}
