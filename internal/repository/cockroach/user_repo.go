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

const userColumns = `user_id, label, tagged, created_at`

// UserRepository handles the user directory. Tagged changes are single
// statements, so concurrent tags never lose each other.
type UserRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool, m *metrics.Metrics) *UserRepository {
	return &UserRepository{pool: pool, metrics: m}
}

// CreateIfAbsent inserts user unless its ID already exists and returns the stored record
func (r *UserRepository) CreateIfAbsent(ctx context.Context, user *domain.User) (stored *domain.User, created bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "create user", start, err) }(time.Now())

	insert := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, insert,
		user.ID,
		user.Label,
		user.Tagged.Strings(),
		user.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}

	stored, err = r.Get(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, userID uuid.UUID) (user *domain.User, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "get user", start, err) }(time.Now())

	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, userID))
}

// List returns every user, oldest first
func (r *UserRepository) List(ctx context.Context) (users []*domain.User, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "list users", start, err) }(time.Now())

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// AddTagged appends friendID to tagged unless it is already there
func (r *UserRepository) AddTagged(ctx context.Context, userID, friendID uuid.UUID) (changed bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "tag user", start, err) }(time.Now())

	update := `
		UPDATE users SET tagged = array_append(tagged, $2::STRING)
		WHERE user_id = $1 AND NOT tagged @> ARRAY[$2::STRING]
	`
	return r.updateTagged(ctx, update, userID, friendID)
}

// RemoveTagged drops friendID from tagged
func (r *UserRepository) RemoveTagged(ctx context.Context, userID, friendID uuid.UUID) (changed bool, err error) {
	defer func(start time.Time) { err = observe(r.metrics, "untag user", start, err) }(time.Now())

	update := `
		UPDATE users SET tagged = array_remove(tagged, $2::STRING)
		WHERE user_id = $1 AND tagged @> ARRAY[$2::STRING]
	`
	return r.updateTagged(ctx, update, userID, friendID)
}

// updateTagged runs a guarded update. No affected row means either the set
// already had the wanted shape or the user does not exist.
func (r *UserRepository) updateTagged(ctx context.Context, update string, userID, friendID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, update, userID, friendID.String())
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, apperrors.NotFoundError("user")
	}
	return false, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user   domain.User
		tagged []string
	)
	err := row.Scan(
		&user.ID,
		&user.Label,
		&tagged,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundError("user")
		}
		return nil, err
	}

	user.Tagged = domain.ParseIDSet(tagged)
	return &user, nil
}
