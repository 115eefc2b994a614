// Package constants defines application-wide constants for timeouts, limits, and markers.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait is how long a connection may stay silent before it is dropped
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait is the deadline for a single frame write
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Storage and file upload constants
const (
	// PresignedURLExpiry is the validity period for presigned upload URLs
	PresignedURLExpiry = 15 * time.Minute

	// DownloadURLExpiry is the validity period for presigned attachment URLs
	DownloadURLExpiry = 7 * 24 * time.Hour

	// MaxAttachmentSize is the maximum allowed attachment size in bytes (50MB)
	MaxAttachmentSize = 50 * 1024 * 1024

	// MaxFilenameLength caps the stored original filename
	MaxFilenameLength = 255
)

// Call-related constants
const (
	// CallSessionTTL bounds how long an abandoned signaling session survives in redis
	CallSessionTTL = 2 * time.Hour

	// MaxSignalSize is the largest accepted signaling blob
	MaxSignalSize = 64 * 1024
)

// Presence constants
const (
	// PresenceTTL is refreshed on every WebSocket ping
	PresenceTTL = 2 * time.Minute

	// PushTokenExpiry drops device tokens that were not re-registered
	PushTokenExpiry = 30 * 24 * time.Hour
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed message length
	MaxMessageLength = 10000

	// MaxGroupNameLength is the maximum allowed group name length
	MaxGroupNameLength = 100

	// RedactionMarker replaces the text of a consumed view-once message
	RedactionMarker = "**"

	// SystemSenderLabel is the label on server-authored audit messages
	SystemSenderLabel = "System"

	// ProhibitedContentWarning is formatted with the sender label
	ProhibitedContentWarning = "Warning: Prohibited content was attempted by %s"
)
