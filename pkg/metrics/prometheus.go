package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one service. Every method is safe
// on a nil receiver so services can be constructed without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Store Metrics
	storeOpDuration  *prometheus.HistogramVec
	storeErrorsTotal *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections   *prometheus.GaugeVec
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Messaging Metrics
	messagesAppendedTotal   *prometheus.CounterVec
	moderationBlockedTotal  *prometheus.CounterVec
	viewsMarkedTotal        prometheus.Counter
	subscriptionsActive     prometheus.Gauge
	snapshotsDeliveredTotal prometheus.Counter
	directResolvedTotal     *prometheus.CounterVec
	userTagChangesTotal     *prometheus.CounterVec

	// Membership Metrics
	membershipMutationsTotal *prometheus.CounterVec
	membershipDeniedTotal    *prometheus.CounterVec

	// Signaling Metrics
	signalsPublishedTotal *prometheus.CounterVec
	callSessionsTotal     *prometheus.CounterVec

	// Push Notification Metrics
	pushNotificationsTotal  *prometheus.CounterVec
	pushNotificationsFailed *prometheus.CounterVec

	// Rate Limiting Metrics
	rateLimitBlockedTotal *prometheus.CounterVec
}

// NewMetrics creates a registry for serviceName and registers all metrics on it
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		storeOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "store_operation_duration_seconds",
				Help:        "Persistence backend latency in seconds",
				ConstLabels: labels,
				Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"backend", "operation"},
		),
		storeErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "store_errors_total",
				Help:        "Total number of persistence backend errors",
				ConstLabels: labels,
			},
			[]string{"backend", "operation"},
		),

		websocketConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Current number of active WebSocket connections",
				ConstLabels: labels,
			},
			[]string{"hub"},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket frames",
				ConstLabels: labels,
			},
			[]string{"type", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error_type"},
		),

		messagesAppendedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "chat_messages_appended_total",
				Help:        "Total number of messages appended to a conversation log",
				ConstLabels: labels,
			},
			[]string{"conversation_kind", "body_type"},
		),
		moderationBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "chat_moderation_blocked_total",
				Help:        "Total number of sends rejected by the moderation gate",
				ConstLabels: labels,
			},
			[]string{"conversation_kind"},
		),
		viewsMarkedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "chat_view_once_marked_total",
				Help:        "Total number of view-once messages consumed by a viewer",
				ConstLabels: labels,
			},
		),
		subscriptionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "chat_subscriptions_active",
				Help:        "Current number of live conversation subscriptions",
				ConstLabels: labels,
			},
		),
		snapshotsDeliveredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "chat_snapshots_delivered_total",
				Help:        "Total number of conversation snapshots delivered to subscribers",
				ConstLabels: labels,
			},
		),
		directResolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "chat_direct_resolved_total",
				Help:        "Total number of direct conversation resolutions",
				ConstLabels: labels,
			},
			[]string{"created"},
		),
		userTagChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "user_tag_changes_total",
				Help:        "Total number of applied friend tag changes",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),

		membershipMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "group_membership_mutations_total",
				Help:        "Total number of applied group membership mutations",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
		membershipDeniedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "group_membership_denied_total",
				Help:        "Total number of group mutations rejected by role checks",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),

		signalsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_published_total",
				Help:        "Total number of signaling blobs published",
				ConstLabels: labels,
			},
			[]string{"role"},
		),
		callSessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_sessions_total",
				Help:        "Total number of call session lifecycle events",
				ConstLabels: labels,
			},
			[]string{"event"},
		),

		pushNotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Total number of push notifications sent",
				ConstLabels: labels,
			},
			[]string{"platform"},
		),
		pushNotificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_failed_total",
				Help:        "Total number of failed push notifications",
				ConstLabels: labels,
			},
			[]string{"platform"},
		),

		rateLimitBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rate_limit_blocked_total",
				Help:        "Total number of requests blocked by rate limiting",
				ConstLabels: labels,
			},
			[]string{"limiter"},
		),
	}

	return m
}

// GetRegistry returns the registry backing the /metrics endpoint
func (m *Metrics) GetRegistry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Dec()
}

// Store Metrics Methods

// RecordStoreOp records one persistence call
func (m *Metrics) RecordStoreOp(backend, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.storeOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		m.storeErrorsTotal.WithLabelValues(backend, operation).Inc()
	}
}

// WebSocket Metrics Methods

// AddWebSocketConnections adjusts the live connection gauge of a hub
func (m *Metrics) AddWebSocketConnections(hub string, delta int) {
	if m == nil {
		return
	}
	m.websocketConnections.WithLabelValues(hub).Add(float64(delta))
}

// RecordWebSocketMessage records a WebSocket frame
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(errType string) {
	if m == nil {
		return
	}
	m.websocketErrorsTotal.WithLabelValues(errType).Inc()
}

// Messaging Metrics Methods

// RecordMessageAppended records a stored message
func (m *Metrics) RecordMessageAppended(conversationKind, bodyType string) {
	if m == nil {
		return
	}
	m.messagesAppendedTotal.WithLabelValues(conversationKind, bodyType).Inc()
}

// RecordModerationBlocked records a send rejected by the blocklist
func (m *Metrics) RecordModerationBlocked(conversationKind string) {
	if m == nil {
		return
	}
	m.moderationBlockedTotal.WithLabelValues(conversationKind).Inc()
}

// RecordViewMarked records a view-once message consumed by a viewer
func (m *Metrics) RecordViewMarked() {
	if m == nil {
		return
	}
	m.viewsMarkedTotal.Inc()
}

// AddSubscriptions adjusts the live subscription gauge
func (m *Metrics) AddSubscriptions(delta int) {
	if m == nil {
		return
	}
	m.subscriptionsActive.Add(float64(delta))
}

// RecordSnapshotDelivered records a snapshot handed to a subscriber
func (m *Metrics) RecordSnapshotDelivered() {
	if m == nil {
		return
	}
	m.snapshotsDeliveredTotal.Inc()
}

// RecordDirectResolved records a direct conversation resolution
func (m *Metrics) RecordDirectResolved(created bool) {
	if m == nil {
		return
	}
	m.directResolvedTotal.WithLabelValues(strconv.FormatBool(created)).Inc()
}

// RecordUserTagChange records a tag or untag that changed the tagged set
func (m *Metrics) RecordUserTagChange(operation string) {
	if m == nil {
		return
	}
	m.userTagChangesTotal.WithLabelValues(operation).Inc()
}

// Membership Metrics Methods

// RecordMembershipMutation records an applied group mutation
func (m *Metrics) RecordMembershipMutation(operation string) {
	if m == nil {
		return
	}
	m.membershipMutationsTotal.WithLabelValues(operation).Inc()
}

// RecordMembershipDenied records a group mutation rejected for lack of role
func (m *Metrics) RecordMembershipDenied(operation string) {
	if m == nil {
		return
	}
	m.membershipDeniedTotal.WithLabelValues(operation).Inc()
}

// Signaling Metrics Methods

// RecordSignalPublished records a published offer or answer
func (m *Metrics) RecordSignalPublished(role string) {
	if m == nil {
		return
	}
	m.signalsPublishedTotal.WithLabelValues(role).Inc()
}

// RecordCallSession records a session start or end
func (m *Metrics) RecordCallSession(event string) {
	if m == nil {
		return
	}
	m.callSessionsTotal.WithLabelValues(event).Inc()
}

// Push Notification Metrics Methods

// RecordPushNotification records a push notification
func (m *Metrics) RecordPushNotification(platform string) {
	if m == nil {
		return
	}
	m.pushNotificationsTotal.WithLabelValues(platform).Inc()
}

// RecordPushNotificationFailure records a failed push notification
func (m *Metrics) RecordPushNotificationFailure(platform string) {
	if m == nil {
		return
	}
	m.pushNotificationsFailed.WithLabelValues(platform).Inc()
}

// Rate Limiting Metrics Methods

// RecordRateLimitBlocked records a request blocked by rate limiting
func (m *Metrics) RecordRateLimitBlocked(limiter string) {
	if m == nil {
		return
	}
	m.rateLimitBlockedTotal.WithLabelValues(limiter).Inc()
}
