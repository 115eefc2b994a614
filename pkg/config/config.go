package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"chatcore-backend/pkg/env"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendCluster  = "cluster"
	BackendEmbedded = "embedded"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cassandra  CassandraConfig
	Pebble     PebbleConfig
	MinIO      MinIOConfig
	JWT        JWTConfig
	Log        LogConfig
	Moderation ModerationConfig
	Audit      AuditConfig
	Push       PushConfig
	RateLimit  RateLimitConfig
	Tracing    TracingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Backend string // memory, cluster, embedded
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

// PebbleConfig holds the embedded store location
type PebbleConfig struct {
	Path string
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	MaxUpload int64
	// PublicURL serves objects from a public-read bucket; empty means presigned GET URLs
	PublicURL string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	Audience          string
	AccessTokenExpiry time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

// ModerationConfig holds the blocklist source
type ModerationConfig struct {
	Blocklist      []string
	BlocklistFile  string
	ReloadInterval time.Duration
}

// AuditConfig holds the audit sink configuration
type AuditConfig struct {
	AMQPURL    string
	Exchange   string
	RoutingKey string
}

// PushConfig holds push provider credentials
type PushConfig struct {
	Provider        string // none, fcm, apns
	FirebaseProject string
	FirebaseCreds   string
	APNsKeyPath     string
	APNsKeyID       string
	APNsTeamID      string
	APNsTopic       string
	APNsProduction  bool
}

// RateLimitConfig holds per-user request limits
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// TracingConfig holds OpenTelemetry exporter settings
type TracingConfig struct {
	Endpoint string
	Insecure bool
}

// DefaultBlocklist is used when neither BLOCKLIST nor BLOCKLIST_FILE is set.
var DefaultBlocklist = []string{"badword1", "badword2", "offensive", "prohibited"}

// Load loads configuration from .env (if present) and environment variables
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8082),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "chat-service"),
			AllowedOrigins: env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RequestTimeout: env.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Backend: env.GetString("STORAGE_BACKEND", BackendMemory),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("COCKROACH_HOST", "localhost"),
			Port:     env.GetInt("COCKROACH_PORT", 26257),
			User:     env.GetString("COCKROACH_USER", "root"),
			Password: env.GetStringFromFile("COCKROACH_PASSWORD", ""),
			Database: env.GetString("COCKROACH_DATABASE", "chatcore"),
			SSLMode:  env.GetString("COCKROACH_SSLMODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Cassandra: CassandraConfig{
			Hosts:    env.GetStringSlice("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace: env.GetString("CASSANDRA_KEYSPACE", "chatcore_ks"),
			Username: env.GetStringFromFile("CASSANDRA_USER", ""),
			Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
			Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 10*time.Second),
		},
		Pebble: PebbleConfig{
			Path: env.GetString("PEBBLE_PATH", "./data/chatcore"),
		},
		MinIO: MinIOConfig{
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "chatcore-attachments"),
			MaxUpload: int64(env.GetInt("MAX_UPLOAD_BYTES", 25<<20)),
			PublicURL: env.GetString("MINIO_PUBLIC_URL", ""),
		},
		JWT: JWTConfig{
			Secret:            env.GetStringFromFile("JWT_SECRET", ""),
			Audience:          env.GetString("JWT_AUDIENCE", "chatcore-api"),
			AccessTokenExpiry: env.GetDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/app.log"),
		},
		Moderation: ModerationConfig{
			Blocklist:      env.GetStringSlice("BLOCKLIST", DefaultBlocklist),
			BlocklistFile:  env.GetString("BLOCKLIST_FILE", ""),
			ReloadInterval: env.GetDuration("BLOCKLIST_RELOAD_INTERVAL", 30*time.Second),
		},
		Audit: AuditConfig{
			AMQPURL:    env.GetStringFromFile("AMQP_URL", ""),
			Exchange:   env.GetString("AUDIT_EXCHANGE", "chatcore.audit"),
			RoutingKey: env.GetString("AUDIT_ROUTING_KEY", "chat.audit"),
		},
		Push: PushConfig{
			Provider:        env.GetString("PUSH_PROVIDER", "none"),
			FirebaseProject: env.GetString("FIREBASE_PROJECT_ID", ""),
			FirebaseCreds:   env.GetStringFromFile("FIREBASE_CREDENTIALS", ""),
			APNsKeyPath:     env.GetString("APNS_KEY_PATH", ""),
			APNsKeyID:       env.GetString("APNS_KEY_ID", ""),
			APNsTeamID:      env.GetString("APNS_TEAM_ID", ""),
			APNsTopic:       env.GetString("APNS_TOPIC", ""),
			APNsProduction:  env.GetBool("APNS_PRODUCTION", false),
		},
		RateLimit: RateLimitConfig{
			Requests: env.GetInt("RATE_LIMIT_REQUESTS", 120),
			Window:   env.GetDuration("RATE_LIMIT_WINDOW", time.Minute),
			Burst:    env.GetInt("RATE_LIMIT_BURST", 20),
		},
		Tracing: TracingConfig{
			Endpoint: env.GetString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure: env.GetBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.Storage.Backend == BackendMemory {
			return fmt.Errorf("STORAGE_BACKEND=memory is not allowed in production")
		}
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendCluster, BackendEmbedded:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	if c.Storage.Backend == BackendEmbedded && c.Pebble.Path == "" {
		return fmt.Errorf("PEBBLE_PATH is required for the embedded backend")
	}

	switch c.Push.Provider {
	case "none", "":
	case "fcm":
		if c.Push.FirebaseCreds == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS is required for PUSH_PROVIDER=fcm")
		}
	case "apns":
		if c.Push.APNsKeyPath == "" || c.Push.APNsKeyID == "" || c.Push.APNsTeamID == "" {
			return fmt.Errorf("APNS_KEY_PATH, APNS_KEY_ID and APNS_TEAM_ID are required for PUSH_PROVIDER=apns")
		}
	default:
		return fmt.Errorf("unknown PUSH_PROVIDER %q", c.Push.Provider)
	}

	if c.JWT.Secret == "" {
		fmt.Println("⚠️  WARNING: JWT_SECRET is empty. This is INSECURE for production!")
	}

	return nil
}
