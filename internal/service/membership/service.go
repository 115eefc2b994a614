// Package membership owns group membership and admin roles and decides who may change them.
package membership

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	"chatcore-backend/pkg/audit"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/sanitize"
	"chatcore-backend/pkg/telemetry"
)

const tracerName = "chatcore/membership"

// Publisher sends notifier events
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Service handles group membership business logic
type Service struct {
	groups    repository.GroupRepository
	publisher Publisher
	audit     *audit.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService creates a new membership service
func NewService(groups repository.GroupRepository, publisher Publisher, auditLogger *audit.Logger, m *metrics.Metrics) *Service {
	return &Service{
		groups:    groups,
		publisher: publisher,
		audit:     auditLogger,
		metrics:   m,
		now:       time.Now,
	}
}

// CreateGroup creates a group with caller as its sole member and admin.
// An empty visibility means private.
func (s *Service) CreateGroup(ctx context.Context, name string, visibility domain.Visibility, caller uuid.UUID) (*domain.Group, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "membership.CreateGroup")
	defer span.End()

	name = strings.TrimSpace(sanitize.StripControlCharacters(name))
	if name == "" {
		return nil, apperrors.MissingFieldError("name")
	}
	if !sanitize.ValidateStringLength(name, 1, constants.MaxGroupNameLength) {
		return nil, apperrors.ValidationError("group name is too long")
	}
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, apperrors.ValidationError("visibility must be public or private")
	}

	group := domain.NewGroup(name, visibility, caller, s.now().UTC())
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}

	s.metrics.RecordMembershipMutation("create")
	s.audit.Record(ctx, audit.EventGroupCreate, caller, &group.ID, "group", true)
	s.publish(ctx, group, caller)

	logger.FromContext(ctx).Info("Group created",
		logger.GroupID(group.ID),
		logger.UserID(caller),
		zap.String("visibility", string(visibility)),
	)
	return group, nil
}

// AddMember adds target to the group. Admin only; adding a member twice is a no-op.
func (s *Service) AddMember(ctx context.Context, groupID, target, caller uuid.UUID) (*domain.Group, error) {
	return s.mutate(ctx, "add_member", audit.EventMemberAdd, groupID, caller, target, func(g *domain.Group) error {
		if err := requireAdmin(g, caller, "add members"); err != nil {
			return err
		}
		g.Members.Add(target)
		return nil
	})
}

// RemoveMember removes target from members and admins in one update. Admin only.
func (s *Service) RemoveMember(ctx context.Context, groupID, target, caller uuid.UUID) (*domain.Group, error) {
	return s.mutate(ctx, "remove_member", audit.EventMemberRemove, groupID, caller, target, func(g *domain.Group) error {
		if err := requireAdmin(g, caller, "remove members"); err != nil {
			return err
		}
		g.Members.Remove(target)
		g.Admins.Remove(target)
		return nil
	})
}

// Promote grants target the admin role. Admin only; target must be a member.
func (s *Service) Promote(ctx context.Context, groupID, target, caller uuid.UUID) (*domain.Group, error) {
	return s.mutate(ctx, "promote", audit.EventAdminPromote, groupID, caller, target, func(g *domain.Group) error {
		if err := requireAdmin(g, caller, "promote members"); err != nil {
			return err
		}
		if !g.IsMember(target) {
			return apperrors.ValidationError("only members can be promoted")
		}
		g.Admins.Add(target)
		return nil
	})
}

// Demote revokes the admin role of target. Admin only. Demoting the last admin
// is allowed and leaves the group without admins.
func (s *Service) Demote(ctx context.Context, groupID, target, caller uuid.UUID) (*domain.Group, error) {
	lastAdmin := false
	group, err := s.mutate(ctx, "demote", audit.EventAdminDemote, groupID, caller, target, func(g *domain.Group) error {
		if err := requireAdmin(g, caller, "demote admins"); err != nil {
			return err
		}
		lastAdmin = g.Admins.Remove(target) && len(g.Admins) == 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	if lastAdmin && len(group.Members) > 0 {
		logger.FromContext(ctx).Warn("Group has members but no admins",
			logger.GroupID(groupID),
			logger.UserID(caller),
		)
		s.audit.Record(ctx, audit.EventLastAdminGone, caller, &groupID, "group", true)
	}
	return group, nil
}

// JoinPublicGroup adds caller to a public group's members. Private groups are Forbidden.
func (s *Service) JoinPublicGroup(ctx context.Context, groupID, caller uuid.UUID) (*domain.Group, error) {
	return s.mutate(ctx, "join", audit.EventGroupJoin, groupID, caller, caller, func(g *domain.Group) error {
		if !g.IsPublic() {
			return apperrors.ForbiddenError("group is private")
		}
		g.Members.Add(caller)
		return nil
	})
}

// GetGroup returns a group to its members, or to anyone when it is public.
func (s *Service) GetGroup(ctx context.Context, groupID, caller uuid.UUID) (*domain.Group, error) {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(caller) && !group.IsPublic() {
		s.metrics.RecordMembershipDenied("get")
		return nil, apperrors.ForbiddenError("not a member of this group")
	}
	return group, nil
}

// RequireMember returns the group when caller belongs to it.
func (s *Service) RequireMember(ctx context.Context, groupID, caller uuid.UUID) (*domain.Group, error) {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(caller) {
		return nil, apperrors.ForbiddenError("not a member of this group")
	}
	return group, nil
}

// ListMyGroups returns the groups caller belongs to
func (s *Service) ListMyGroups(ctx context.Context, caller uuid.UUID) ([]*domain.Group, error) {
	return s.groups.ListByMember(ctx, caller)
}

// ListPublicGroups returns every public group
func (s *Service) ListPublicGroups(ctx context.Context) ([]*domain.Group, error) {
	return s.groups.ListPublic(ctx)
}

func requireAdmin(g *domain.Group, caller uuid.UUID, action string) error {
	if !g.IsAdmin(caller) {
		return apperrors.ForbiddenError("only group admins can " + action)
	}
	return nil
}

// mutate runs fn as one serialized read-check-modify on the group, then
// records, audits and publishes the change.
func (s *Service) mutate(ctx context.Context, op string, eventType audit.EventType, groupID, caller, target uuid.UUID, fn func(g *domain.Group) error) (*domain.Group, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "membership."+op,
		"group_id", groupID.String(),
	)
	defer span.End()

	group, err := s.groups.Mutate(ctx, groupID, func(g *domain.Group) error {
		if err := fn(g); err != nil {
			return err
		}
		if !g.Consistent() {
			return apperrors.InternalError("admins must be members")
		}
		return nil
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeForbidden {
			s.metrics.RecordMembershipDenied(op)
			s.audit.Record(ctx, audit.EventAccessDenied, caller, &target, "group:"+groupID.String()+":"+op, false)
		}
		span.RecordError(err)
		return nil, err
	}

	s.metrics.RecordMembershipMutation(op)
	s.audit.Record(ctx, eventType, caller, &target, "group:"+groupID.String(), true)
	s.publish(ctx, group, caller)
	return group, nil
}

func (s *Service) publish(ctx context.Context, group *domain.Group, actor uuid.UUID) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, &domain.Event{
		Type:      domain.EventGroupUpdated,
		Topic:     domain.GroupTopic(group.ID),
		SubjectID: group.ID,
		ActorID:   actor,
		Seq:       group.Version,
	}); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish group update",
			logger.GroupID(group.ID),
			zap.Error(err),
		)
	}
}
