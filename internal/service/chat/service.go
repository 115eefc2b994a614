// Package chat implements the send, read and view paths of direct and group conversations.
package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/moderation"
	"chatcore-backend/internal/notifier"
	"chatcore-backend/internal/repository"
	"chatcore-backend/internal/service/storage"
	"chatcore-backend/internal/visibility"
	"chatcore-backend/pkg/audit"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/push"
	"chatcore-backend/pkg/telemetry"
)

const tracerName = "chatcore/chat"

// pushTimeout bounds the background push fan-out of one message
const pushTimeout = 10 * time.Second

// GroupAccess resolves group membership
type GroupAccess interface {
	RequireMember(ctx context.Context, groupID, caller uuid.UUID) (*domain.Group, error)
}

// DirectAccess resolves direct conversation participants
type DirectAccess interface {
	GetDirect(ctx context.Context, conversationID, caller uuid.UUID) (*domain.DirectConversation, error)
}

// Attachments stores attachment blobs
type Attachments interface {
	Upload(ctx context.Context, ref domain.ConversationRef, filename string, r io.Reader, size int64, contentType string) (*domain.AttachmentBody, error)
	RequestUpload(ctx context.Context, ref domain.ConversationRef, filename string, size int64) (*storage.UploadTicket, error)
	CompleteUpload(ctx context.Context, ref domain.ConversationRef, objectKey, filename string) (*domain.AttachmentBody, error)
}

// Stream publishes events and opens snapshot subscriptions
type Stream interface {
	Publish(ctx context.Context, event *domain.Event) error
	Subscribe(ctx context.Context, conversationID uuid.UUID) (*notifier.Subscription, error)
}

// Pusher notifies users without a live connection
type Pusher interface {
	NotifyUsers(ctx context.Context, notification *push.Notification, userIDs []uuid.UUID) error
}

// Dependencies wires a Service. Attachments, Presence, Pusher and Audit are optional.
type Dependencies struct {
	Messages    repository.MessageRepository
	Gate        *moderation.Gate
	Groups      GroupAccess
	Directs     DirectAccess
	Visibility  *visibility.Engine
	Stream      Stream
	Attachments Attachments
	Presence    repository.PresenceRepository
	Pusher      Pusher
	Audit       *audit.Logger
	Metrics     *metrics.Metrics
}

// Service handles chat business logic
type Service struct {
	messages    repository.MessageRepository
	gate        *moderation.Gate
	groups      GroupAccess
	directs     DirectAccess
	visibility  *visibility.Engine
	stream      Stream
	attachments Attachments
	presence    repository.PresenceRepository
	pusher      Pusher
	audit       *audit.Logger
	metrics     *metrics.Metrics
}

// NewService creates a new chat service
func NewService(deps Dependencies) *Service {
	return &Service{
		messages:    deps.Messages,
		gate:        deps.Gate,
		groups:      deps.Groups,
		directs:     deps.Directs,
		visibility:  deps.Visibility,
		stream:      deps.Stream,
		attachments: deps.Attachments,
		presence:    deps.Presence,
		pusher:      deps.Pusher,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
	}
}

// SendTextInput contains a text message
type SendTextInput struct {
	Conversation domain.ConversationRef
	Sender       domain.Identity
	Text         string
	ViewOnce     bool
}

// SendText checks, moderates and appends a text message. A blocked group
// message leaves a system warning in the conversation.
func (s *Service) SendText(ctx context.Context, input *SendTextInput) (*domain.Message, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, apperrors.ValidationError("message body is empty")
	}
	if len(input.Text) > constants.MaxMessageLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("message exceeds %d bytes", constants.MaxMessageLength))
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "chat.SendText",
		"conversation_id", input.Conversation.ID.String(),
		"kind", string(input.Conversation.Kind),
	)
	defer span.End()

	participants, err := s.authorize(ctx, input.Conversation, input.Sender.ID)
	if err != nil {
		return nil, err
	}

	if verdict := s.gate.Evaluate(input.Text); verdict.Blocked() {
		s.blocked(ctx, input, verdict)
		return nil, apperrors.ModerationBlockedError()
	}

	msg := domain.NewMessage(input.Conversation, input.Sender, domain.TextBody{Text: input.Text}, input.ViewOnce)
	return s.append(ctx, msg, participants)
}

// blocked records a moderation rejection
func (s *Service) blocked(ctx context.Context, input *SendTextInput, verdict moderation.Verdict) {
	s.metrics.RecordModerationBlocked(string(input.Conversation.Kind))
	s.audit.LogModerationBlocked(ctx, input.Sender.ID, string(input.Conversation.Kind)+":"+input.Conversation.ID.String(), verdict.Match)
	logger.FromContext(ctx).Info("Message blocked by moderation",
		logger.ConversationID(input.Conversation.ID),
		logger.UserID(input.Sender.ID),
	)

	if input.Conversation.Kind != domain.KindGroup {
		return
	}
	warning := domain.NewMessage(input.Conversation,
		domain.Identity{ID: domain.SystemSenderID, Label: constants.SystemSenderLabel},
		domain.TextBody{Text: fmt.Sprintf(constants.ProhibitedContentWarning, input.Sender.Label)},
		false,
	)
	if _, err := s.append(ctx, warning, nil); err != nil {
		logger.FromContext(ctx).Warn("Failed to append moderation warning",
			logger.ConversationID(input.Conversation.ID),
			zap.Error(err),
		)
	}
}

// SendAttachmentInput contains an uploaded file
type SendAttachmentInput struct {
	Conversation domain.ConversationRef
	Sender       domain.Identity
	Filename     string
	Reader       io.Reader
	Size         int64
	ContentType  string
}

// SendAttachment uploads the file and appends an attachment message.
// Attachments are never view-once.
func (s *Service) SendAttachment(ctx context.Context, input *SendAttachmentInput) (*domain.Message, error) {
	if s.attachments == nil {
		return nil, apperrors.ValidationError("attachments are disabled")
	}
	if input.Filename == "" {
		return nil, apperrors.MissingFieldError("file")
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "chat.SendAttachment",
		"conversation_id", input.Conversation.ID.String(),
	)
	defer span.End()

	participants, err := s.authorize(ctx, input.Conversation, input.Sender.ID)
	if err != nil {
		return nil, err
	}

	body, err := s.attachments.Upload(ctx, input.Conversation, input.Filename, input.Reader, input.Size, input.ContentType)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventAttachmentUpload, input.Sender.ID, &input.Conversation.ID, body.Filename, true)

	msg := domain.NewMessage(input.Conversation, input.Sender, *body, false)
	return s.append(ctx, msg, participants)
}

// RequestUpload presigns an upload into the conversation
func (s *Service) RequestUpload(ctx context.Context, ref domain.ConversationRef, caller uuid.UUID, filename string, size int64) (*storage.UploadTicket, error) {
	if s.attachments == nil {
		return nil, apperrors.ValidationError("attachments are disabled")
	}
	if _, err := s.authorize(ctx, ref, caller); err != nil {
		return nil, err
	}
	return s.attachments.RequestUpload(ctx, ref, filename, size)
}

// CompleteUpload appends the attachment message of a finished presigned upload
func (s *Service) CompleteUpload(ctx context.Context, ref domain.ConversationRef, sender domain.Identity, objectKey, filename string) (*domain.Message, error) {
	if s.attachments == nil {
		return nil, apperrors.ValidationError("attachments are disabled")
	}
	participants, err := s.authorize(ctx, ref, sender.ID)
	if err != nil {
		return nil, err
	}

	body, err := s.attachments.CompleteUpload(ctx, ref, objectKey, filename)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EventAttachmentUpload, sender.ID, &ref.ID, body.Filename, true)

	return s.append(ctx, domain.NewMessage(ref, sender, *body, false), participants)
}

// History renders the conversation for viewer. With mark set, view-once
// messages shown for the first time are consumed after rendering.
func (s *Service) History(ctx context.Context, ref domain.ConversationRef, viewer uuid.UUID, mark bool, opts visibility.Options) ([]visibility.Rendered, error) {
	if _, err := s.authorize(ctx, ref, viewer); err != nil {
		return nil, err
	}

	msgs, err := s.messages.List(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, msgs, viewer, mark, opts)
}

// Deliver renders a snapshot for viewer and then consumes what it revealed.
// Duplicate deliveries of the same snapshot mark nothing new.
func (s *Service) Deliver(ctx context.Context, snap *notifier.Snapshot, viewer uuid.UUID, opts visibility.Options) ([]visibility.Rendered, error) {
	return s.deliver(ctx, snap.Messages, viewer, true, opts)
}

func (s *Service) deliver(ctx context.Context, msgs []*domain.Message, viewer uuid.UUID, mark bool, opts visibility.Options) ([]visibility.Rendered, error) {
	rendered := visibility.RenderAll(msgs, viewer, opts)
	if mark {
		if _, err := s.visibility.MarkRendered(ctx, msgs, viewer); err != nil {
			return rendered, err
		}
	}
	return rendered, nil
}

// MarkViewed consumes one view-once message for viewer
func (s *Service) MarkViewed(ctx context.Context, ref domain.ConversationRef, messageID, viewer uuid.UUID) (bool, error) {
	if _, err := s.authorize(ctx, ref, viewer); err != nil {
		return false, err
	}
	return s.visibility.MarkViewed(ctx, ref.ID, messageID, viewer)
}

// Subscribe opens a snapshot stream for a participant
func (s *Service) Subscribe(ctx context.Context, ref domain.ConversationRef, viewer uuid.UUID) (*notifier.Subscription, error) {
	if _, err := s.authorize(ctx, ref, viewer); err != nil {
		return nil, err
	}
	return s.stream.Subscribe(ctx, ref.ID)
}

// Authorize returns the participants of ref when caller is one of them.
func (s *Service) Authorize(ctx context.Context, ref domain.ConversationRef, caller uuid.UUID) ([]uuid.UUID, error) {
	return s.authorize(ctx, ref, caller)
}

func (s *Service) authorize(ctx context.Context, ref domain.ConversationRef, caller uuid.UUID) ([]uuid.UUID, error) {
	switch ref.Kind {
	case domain.KindGroup:
		group, err := s.groups.RequireMember(ctx, ref.ID, caller)
		if err != nil {
			return nil, err
		}
		return group.Members.Sorted(), nil
	case domain.KindDirect:
		conv, err := s.directs.GetDirect(ctx, ref.ID, caller)
		if err != nil {
			return nil, err
		}
		return conv.Participants[:], nil
	default:
		return nil, apperrors.ValidationError("unknown conversation kind")
	}
}

// append stores msg, announces it and pushes it to offline participants.
func (s *Service) append(ctx context.Context, msg *domain.Message, participants []uuid.UUID) (*domain.Message, error) {
	stored, err := s.messages.Append(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMessageAppended(string(stored.Kind), string(stored.Body.Type()))

	if err := s.stream.Publish(ctx, &domain.Event{
		Type:      domain.EventMessageAppended,
		Topic:     domain.ConversationTopic(stored.ConversationID),
		SubjectID: stored.ConversationID,
		MessageID: &stored.ID,
		ActorID:   stored.SenderID,
		Seq:       stored.Seq,
	}); err != nil {
		// Stored; live subscribers catch up with the next snapshot.
		logger.FromContext(ctx).Warn("Failed to publish message event",
			logger.MessageID(stored.ID),
			zap.Error(err),
		)
	}

	if s.pusher != nil && len(participants) > 0 {
		go s.pushOffline(context.WithoutCancel(ctx), stored, participants)
	}
	return stored, nil
}

func (s *Service) pushOffline(ctx context.Context, msg *domain.Message, participants []uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	offline := make([]uuid.UUID, 0, len(participants))
	for _, id := range participants {
		if id == msg.SenderID {
			continue
		}
		if s.presence != nil {
			online, err := s.presence.IsOnline(ctx, id)
			if err == nil && online {
				continue
			}
		}
		offline = append(offline, id)
	}
	if len(offline) == 0 {
		return
	}

	if err := s.pusher.NotifyUsers(ctx, pushNotification(msg), offline); err != nil {
		logger.FromContext(ctx).Warn("Push fan-out failed",
			logger.MessageID(msg.ID),
			zap.Error(err),
		)
	}
}

// pushNotification never leaks the text of a view-once message
func pushNotification(msg *domain.Message) *push.Notification {
	n := &push.Notification{
		Title:    msg.SenderLabel,
		Priority: "high",
		Data: map[string]string{
			"conversation_id": msg.ConversationID.String(),
			"kind":            string(msg.Kind),
			"message_id":      msg.ID.String(),
		},
	}
	switch body := msg.Body.(type) {
	case domain.TextBody:
		if msg.ViewOnce {
			n.Body = "Sent a view-once message"
		} else {
			n.Body = body.Text
		}
	case domain.AttachmentBody:
		n.Body = "Sent an attachment: " + body.Filename
	}
	return n
}
