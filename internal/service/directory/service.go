// Package directory resolves the conversation between two identities.
package directory

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

// Service handles direct conversation lookup
type Service struct {
	repo    repository.DirectoryRepository
	audit   *audit.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a new directory service
func NewService(repo repository.DirectoryRepository, auditLogger *audit.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, audit: auditLogger, metrics: m, now: time.Now}
}

// ResolveDirect returns the conversation of a and b, creating it on first use.
// Both orders resolve to the same record and an existing record is never rewritten.
func (s *Service) ResolveDirect(ctx context.Context, a, b uuid.UUID) (*domain.DirectConversation, error) {
	if a == uuid.Nil || b == uuid.Nil {
		return nil, apperrors.MissingFieldError("user_id")
	}
	if a == b {
		return nil, apperrors.ValidationError("cannot start a conversation with yourself")
	}

	ctx, span := telemetry.StartSpan(ctx, "chatcore/directory", "directory.ResolveDirect",
		"conversation_key", domain.DirectKey(a, b),
	)
	defer span.End()

	conv, created, err := s.repo.CreateIfAbsent(ctx, domain.NewDirectConversation(a, b, s.now().UTC()))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.RecordDirectResolved(created)
	if created {
		s.audit.Record(ctx, audit.EventConversationCreate, a, &conv.ID, "direct", true)
		logger.FromContext(ctx).Info("Direct conversation created",
			logger.ConversationID(conv.ID),
			zap.String("conversation_key", conv.Key),
		)
	}
	return conv, nil
}

// GetDirect returns a conversation to one of its participants
func (s *Service) GetDirect(ctx context.Context, conversationID, caller uuid.UUID) (*domain.DirectConversation, error) {
	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(caller) {
		return nil, apperrors.ForbiddenError("not a participant of this conversation")
	}
	return conv, nil
}

// ListMine returns the direct conversations of caller
func (s *Service) ListMine(ctx context.Context, caller uuid.UUID) ([]*domain.DirectConversation, error) {
	return s.repo.ListByParticipant(ctx, caller)
}
