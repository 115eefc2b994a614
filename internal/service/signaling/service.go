// Package signaling relays opaque connection-setup blobs between the two
// participants of a call session. Blobs are never interpreted.
package signaling

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	"chatcore-backend/pkg/audit"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/telemetry"
)

const tracerName = "chatcore/signaling"

// Publisher sends notifier events
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Service handles the signaling exchange
type Service struct {
	sessions  repository.CallSessionRepository
	publisher Publisher
	audit     *audit.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService creates a new signaling service
func NewService(sessions repository.CallSessionRepository, publisher Publisher, auditLogger *audit.Logger, m *metrics.Metrics) *Service {
	return &Service{
		sessions:  sessions,
		publisher: publisher,
		audit:     auditLogger,
		metrics:   m,
		now:       time.Now,
	}
}

// Start creates a session with caller as offerer and peer as answerer. Passing
// the id of an existing session resets its signals; only its two participants
// may do that and the pair never changes. uuid.Nil allocates a new id.
func (s *Service) Start(ctx context.Context, sessionID, caller, peer uuid.UUID) (*domain.CallSession, error) {
	if peer == uuid.Nil {
		return nil, apperrors.MissingFieldError("peer_id")
	}
	if peer == caller {
		return nil, apperrors.ValidationError("cannot call yourself")
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "signaling.Start")
	defer span.End()

	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	} else if existing, err := s.sessions.Get(ctx, sessionID); err == nil {
		if _, ok := existing.RoleOf(caller); !ok {
			return nil, apperrors.ForbiddenError("not a participant of this call")
		}
		if existing.Peer(caller) != peer {
			return nil, apperrors.ForbiddenError("peer is not a participant of this call")
		}
	} else if !apperrors.IsAppError(err) || apperrors.CodeOf(err) != apperrors.ErrCodeNotFound {
		return nil, err
	}

	session := &domain.CallSession{
		ID:        sessionID,
		Offerer:   caller,
		Answerer:  peer,
		StartedAt: s.now().UTC(),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.metrics.RecordCallSession("start")
	s.audit.Record(ctx, audit.EventCallStart, caller, &peer, "call:"+sessionID.String(), true)
	logger.FromContext(ctx).Info("Call session started",
		logger.SessionID(sessionID),
		logger.UserID(caller),
	)
	return session, nil
}

// Publish stores blob in the caller's slot, overwriting any previous blob.
func (s *Service) Publish(ctx context.Context, sessionID, caller uuid.UUID, blob string) (domain.SignalRole, error) {
	if blob == "" {
		return "", apperrors.MissingFieldError("signal")
	}
	if len(blob) > constants.MaxSignalSize {
		return "", apperrors.ValidationError("signal is too large")
	}
	if !utf8.ValidString(blob) {
		return "", apperrors.ValidationError("signal must be text")
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "signaling.Publish")
	defer span.End()

	session, role, err := s.participant(ctx, sessionID, caller)
	if err != nil {
		return "", err
	}
	if err := s.sessions.SetSignal(ctx, session.ID, role, blob); err != nil {
		return "", err
	}

	s.metrics.RecordSignalPublished(string(role))
	s.publish(ctx, &domain.Event{
		Type:      domain.EventSignalPublished,
		Topic:     domain.CallTopic(sessionID),
		SubjectID: sessionID,
		ActorID:   caller,
		Role:      role,
	})
	return role, nil
}

// Read returns the blob the other participant published, if any.
func (s *Service) Read(ctx context.Context, sessionID, caller uuid.UUID) (*domain.SignalResponse, error) {
	session, role, err := s.participant(ctx, sessionID, caller)
	if err != nil {
		return nil, err
	}

	peerRole := domain.RoleAnswerer
	if role == domain.RoleAnswerer {
		peerRole = domain.RoleOfferer
	}
	blob := session.SignalOf(peerRole)
	return &domain.SignalResponse{
		SessionID: sessionID,
		Role:      peerRole,
		Signal:    blob,
		Present:   blob != "",
	}, nil
}

// Get returns the session to one of its participants
func (s *Service) Get(ctx context.Context, sessionID, caller uuid.UUID) (*domain.CallSession, error) {
	session, _, err := s.participant(ctx, sessionID, caller)
	return session, err
}

// End discards the session. Either participant may end it unilaterally.
func (s *Service) End(ctx context.Context, sessionID, caller uuid.UUID) error {
	session, _, err := s.participant(ctx, sessionID, caller)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}

	peer := session.Peer(caller)
	s.metrics.RecordCallSession("end")
	s.audit.Record(ctx, audit.EventCallEnd, caller, &peer, "call:"+sessionID.String(), true)
	s.publish(ctx, &domain.Event{
		Type:      domain.EventCallEnded,
		Topic:     domain.CallTopic(sessionID),
		SubjectID: sessionID,
		ActorID:   caller,
	})
	return nil
}

func (s *Service) participant(ctx context.Context, sessionID, caller uuid.UUID) (*domain.CallSession, domain.SignalRole, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	role, ok := session.RoleOf(caller)
	if !ok {
		return nil, "", apperrors.ForbiddenError("not a participant of this call")
	}
	return session, role, nil
}

func (s *Service) publish(ctx context.Context, event *domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish call event",
			logger.SessionID(event.SubjectID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}
