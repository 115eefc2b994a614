package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORAGE_BACKEND", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, DefaultBlocklist, cfg.Moderation.Blocklist)
	assert.Equal(t, 30*time.Second, cfg.Moderation.ReloadInterval)
	assert.Equal(t, "chatcore-api", cfg.JWT.Audience)
}

func TestLoadBlocklistFromEnv(t *testing.T) {
	t.Setenv("BLOCKLIST", "spam,scam")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"spam", "scam"}, cfg.Moderation.Blocklist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name: "production requires secret",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
				c.Storage.Backend = BackendCluster
				c.JWT.Secret = ""
			},
			wantErr: "JWT_SECRET must be set",
		},
		{
			name: "production rejects short secret",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
				c.Storage.Backend = BackendCluster
			},
			wantErr: "at least 32 characters",
		},
		{
			name: "production rejects memory backend",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
				c.JWT.Secret = "0123456789abcdef0123456789abcdef"
			},
			wantErr: "not allowed in production",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "sqlite" },
			wantErr: "unknown STORAGE_BACKEND",
		},
		{
			name:    "fcm without credentials",
			mutate:  func(c *Config) { c.Push.Provider = "fcm" },
			wantErr: "FIREBASE_CREDENTIALS",
		},
		{
			name:   "valid development config",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:  ServerConfig{Environment: "development"},
				Storage: StorageConfig{Backend: BackendMemory},
				Push:    PushConfig{Provider: "none"},
				JWT:     JWTConfig{Secret: "dev"},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
