package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/logger"
)

// NewProvider creates the push provider selected by PUSH_PROVIDER
func NewProvider(ctx context.Context, cfg *config.PushConfig) (Provider, error) {
	logger.Info("Initializing push notification provider",
		zap.String("provider_type", cfg.Provider))

	switch TokenType(cfg.Provider) {
	case TokenTypeFCM:
		return NewFCMProvider(ctx, &FCMConfig{
			ProjectID:       cfg.FirebaseProject,
			CredentialsPath: cfg.FirebaseCreds,
		})
	case TokenTypeAPNs:
		return NewAPNsProvider(&APNsConfig{
			KeyPath:    cfg.APNsKeyPath,
			KeyID:      cfg.APNsKeyID,
			TeamID:     cfg.APNsTeamID,
			BundleID:   cfg.APNsTopic,
			Production: cfg.APNsProduction,
		})
	case TokenTypeNone, "":
		return NoopProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
}
