// Package user keeps the directory of identities that have visited and the
// friends each of them tagged.
package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	"chatcore-backend/pkg/audit"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/telemetry"
)

const tracerName = "chatcore/user"

// Service handles the user directory
type Service struct {
	repo    repository.UserRepository
	audit   *audit.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a new user service
func NewService(repo repository.UserRepository, auditLogger *audit.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, audit: auditLogger, metrics: m, now: time.Now}
}

// Ensure returns the caller's record, creating it on the first visit. An
// existing record keeps its label and tagged set.
func (s *Service) Ensure(ctx context.Context, caller domain.Identity) (*domain.User, error) {
	if caller.ID == uuid.Nil {
		return nil, apperrors.MissingFieldError("user_id")
	}

	user, created, err := s.repo.CreateIfAbsent(ctx, domain.NewUser(caller, s.now().UTC()))
	if err != nil {
		return nil, err
	}
	if created {
		s.audit.Record(ctx, audit.EventUserCreate, caller.ID, nil, "user", true)
		logger.FromContext(ctx).Info("User registered", logger.UserID(caller.ID))
	}
	return user, nil
}

// ListOthers returns every known user except the caller
func (s *Service) ListOthers(ctx context.Context, caller domain.Identity) ([]*domain.User, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "user.ListOthers")
	defer span.End()

	if _, err := s.Ensure(ctx, caller); err != nil {
		return nil, err
	}
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.User, 0, len(users))
	for _, u := range users {
		if u.ID != caller.ID {
			out = append(out, u)
		}
	}
	return out, nil
}

// Tag adds friendID to the caller's tagged set. The friend must be a known
// user; tagging twice is a no-op.
func (s *Service) Tag(ctx context.Context, caller domain.Identity, friendID uuid.UUID) (*domain.User, error) {
	if friendID == uuid.Nil {
		return nil, apperrors.MissingFieldError("user_id")
	}
	if friendID == caller.ID {
		return nil, apperrors.ValidationError("cannot tag yourself")
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "user.Tag")
	defer span.End()

	if _, err := s.Ensure(ctx, caller); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, friendID); err != nil {
		return nil, err
	}
	changed, err := s.repo.AddTagged(ctx, caller.ID, friendID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.recordChange(ctx, audit.EventUserTag, "tag", caller.ID, friendID)
	}
	return s.repo.Get(ctx, caller.ID)
}

// Untag removes friendID from the caller's tagged set. Removing an id that
// is not tagged is a no-op.
func (s *Service) Untag(ctx context.Context, caller domain.Identity, friendID uuid.UUID) (*domain.User, error) {
	if friendID == uuid.Nil {
		return nil, apperrors.MissingFieldError("user_id")
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "user.Untag")
	defer span.End()

	if _, err := s.Ensure(ctx, caller); err != nil {
		return nil, err
	}
	changed, err := s.repo.RemoveTagged(ctx, caller.ID, friendID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.recordChange(ctx, audit.EventUserUntag, "untag", caller.ID, friendID)
	}
	return s.repo.Get(ctx, caller.ID)
}

func (s *Service) recordChange(ctx context.Context, event audit.EventType, operation string, caller, friendID uuid.UUID) {
	s.metrics.RecordUserTagChange(operation)
	s.audit.Record(ctx, event, caller, &friendID, "user", true)
	logger.FromContext(ctx).Info("Tagged set changed",
		logger.UserID(caller),
		zap.String("operation", operation),
		zap.String("friend_id", friendID.String()),
	)
}
