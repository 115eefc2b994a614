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

// maxTxAttempts bounds replays of a mutation after serialization conflicts
const maxTxAttempts = 3

const groupColumns = `group_id, name, visibility, members, admins, created_by, created_at, version`

// GroupRepository handles group operations. Mutations lock the row, so
// concurrent changes to one group apply one after another.
type GroupRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewGroupRepository creates a new GroupRepository
func NewGroupRepository(pool *pgxpool.Pool, m *metrics.Metrics) *GroupRepository {
	return &GroupRepository{pool: pool, metrics: m}
}

// Create inserts a new group
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) (err error) {
	defer func(start time.Time) { err = observe(r.metrics, "create group", start, err) }(time.Now())

	query := `
		INSERT INTO groups (` + groupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		group.ID,
		group.Name,
		string(group.Visibility),
		group.Members.Strings(),
		group.Admins.Strings(),
		group.CreatedBy,
		group.CreatedAt,
		group.Version,
	)
	return err
}

// Get retrieves a group by ID
func (r *GroupRepository) Get(ctx context.Context, groupID uuid.UUID) (group *domain.Group, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "get group", start, err) }(time.Now())

	query := `SELECT ` + groupColumns + ` FROM groups WHERE group_id = $1`
	return scanGroup(r.pool.QueryRow(ctx, query, groupID))
}

// Mutate applies fn to the locked row and writes it back with a bumped version.
// Errors returned by fn abort the transaction and are returned unchanged.
func (r *GroupRepository) Mutate(ctx context.Context, groupID uuid.UUID, fn func(group *domain.Group) error) (*domain.Group, error) {
	start := time.Now()

	var fnErr error
	apply := func(group *domain.Group) error {
		fnErr = fn(group)
		return fnErr
	}

	for attempt := 1; ; attempt++ {
		fnErr = nil
		group, err := r.mutateOnce(ctx, groupID, apply)
		if fnErr != nil {
			r.metrics.RecordStoreOp(backend, "mutate group", time.Since(start), nil)
			return nil, fnErr
		}
		if err == nil || !isRetryable(err) || attempt == maxTxAttempts {
			return group, observe(r.metrics, "mutate group", start, err)
		}
	}
}

func (r *GroupRepository) mutateOnce(ctx context.Context, groupID uuid.UUID, fn func(group *domain.Group) error) (*domain.Group, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + groupColumns + ` FROM groups WHERE group_id = $1 FOR UPDATE`
	group, err := scanGroup(tx.QueryRow(ctx, query, groupID))
	if err != nil {
		return nil, err
	}

	if err := fn(group); err != nil {
		return nil, err
	}
	group.Version++

	update := `
		UPDATE groups
		SET name = $2, visibility = $3, members = $4, admins = $5, version = $6
		WHERE group_id = $1
	`
	if _, err := tx.Exec(ctx, update,
		group.ID,
		group.Name,
		string(group.Visibility),
		group.Members.Strings(),
		group.Admins.Strings(),
		group.Version,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return group, nil
}

// ListByMember returns the groups userID belongs to, newest first
func (r *GroupRepository) ListByMember(ctx context.Context, userID uuid.UUID) (groups []*domain.Group, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list member groups", start, err) }(time.Now())

	query := `
		SELECT ` + groupColumns + ` FROM groups
		WHERE members @> ARRAY[$1::STRING]
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID.String())
}

// ListPublic returns every public group, newest first
func (r *GroupRepository) ListPublic(ctx context.Context) (groups []*domain.Group, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list public groups", start, err) }(time.Now())

	query := `
		SELECT ` + groupColumns + ` FROM groups
		WHERE visibility = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, string(domain.VisibilityPublic))
}

func (r *GroupRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Group, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*domain.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func scanGroup(row pgx.Row) (*domain.Group, error) {
	var (
		group      domain.Group
		visibility string
		members    []string
		admins     []string
	)
	err := row.Scan(
		&group.ID,
		&group.Name,
		&visibility,
		&members,
		&admins,
		&group.CreatedBy,
		&group.CreatedAt,
		&group.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundError("group")
		}
		return nil, err
	}

	group.Visibility = domain.Visibility(visibility)
	group.Members = domain.ParseIDSet(members)
	group.Admins = domain.ParseIDSet(admins)
	return &group, nil
}
