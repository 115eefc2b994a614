package push

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Platform() TokenType
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal
	Sound    string            `json:"sound,omitempty"`
	Category string            `json:"category,omitempty"`
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
	TokenTypeNone TokenType = "none"
)

// Token represents a push notification token for a user
type Token struct {
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	Platform  string    `json:"platform,omitempty"` // ios, android, web
	CreatedAt time.Time `json:"created_at"`
}

// TokenRepository stores device tokens per user
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	Delete(ctx context.Context, userID uuid.UUID, token string) error
}

// Service sends notifications to every registered device of a set of users
type Service struct {
	provider Provider
	repo     TokenRepository
	metrics  *metrics.Metrics
}

// NewService creates a new push notification service
func NewService(provider Provider, repo TokenRepository, m *metrics.Metrics) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
		metrics:  m,
	}
}

// RegisterToken registers a device token for a user
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	return s.repo.Store(ctx, token)
}

// UnregisterToken removes a device token
func (s *Service) UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error {
	return s.repo.Delete(ctx, userID, token)
}

// NotifyUsers sends the notification to the provider-compatible tokens of userIDs.
// Tokens the provider reports as invalid are removed.
func (s *Service) NotifyUsers(ctx context.Context, notification *Notification, userIDs []uuid.UUID) error {
	if s == nil || s.provider == nil || len(userIDs) == 0 {
		return nil
	}
	platform := s.provider.Platform()

	owners := make(map[string]uuid.UUID)
	var tokens []string
	for _, userID := range userIDs {
		userTokens, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("Failed to load push tokens",
				logger.UserID(userID),
				zap.Error(err))
			continue
		}
		for _, t := range userTokens {
			if t.Type != platform {
				continue
			}
			owners[t.Token] = userID
			tokens = append(tokens, t.Token)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	result, err := s.provider.Send(ctx, notification, tokens)
	if err != nil {
		s.metrics.RecordPushNotificationFailure(string(platform))
		return err
	}

	for i := 0; i < result.SuccessCount; i++ {
		s.metrics.RecordPushNotification(string(platform))
	}
	for i := 0; i < result.FailureCount; i++ {
		s.metrics.RecordPushNotificationFailure(string(platform))
	}

	for _, invalid := range result.InvalidTokens {
		if err := s.repo.Delete(ctx, owners[invalid], invalid); err != nil {
			logger.FromContext(ctx).Warn("Failed to remove invalid push token",
				zap.String("token_prefix", maskPushToken(invalid)),
				zap.Error(err))
		}
	}
	return nil
}

// NoopProvider accepts every notification without sending it
type NoopProvider struct{}

func (NoopProvider) Platform() TokenType { return TokenTypeNone }

func (NoopProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	logger.FromContext(ctx).Debug("Push noop send",
		zap.String("title", notification.Title),
		zap.Int("token_count", len(tokens)))
	return &SendResult{SuccessCount: len(tokens)}, nil
}

// maskPushToken returns a safe masked version of a push token for logging
func maskPushToken(token string) string {
	if len(token) <= 16 {
		return "********"
	}
	return token[:8] + "..." + token[len(token)-8:]
}
