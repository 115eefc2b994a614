package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"chatcore-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Options tunes a Breaker. Zero values select the defaults.
type Options struct {
	FailureThreshold int
	CoolDown         time.Duration
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	Timeout          time.Duration
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.CoolDown <= 0 {
		o.CoolDown = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// Breaker wraps calls to one external dependency with retry, timeout and a circuit breaker.
type Breaker struct {
	name string
	opts Options

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	now                 func() time.Time

	metrics *breakerMetrics
}

type breakerMetrics struct {
	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	state         *prometheus.GaugeVec
}

// NewBreaker creates a breaker for the named dependency. Metrics are registered on reg
// when it is not nil; several breakers may share one registry.
func NewBreaker(name string, reg prometheus.Registerer, opts Options) *Breaker {
	return &Breaker{
		name:    name,
		opts:    opts.withDefaults(),
		state:   CircuitBreakerClosed,
		now:     time.Now,
		metrics: newBreakerMetrics(reg),
	}
}

func newBreakerMetrics(reg prometheus.Registerer) *breakerMetrics {
	m := &breakerMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dependency_requests_total",
			Help: "Total number of calls to an external dependency",
		}, []string{"dependency", "operation", "status"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dependency_errors_total",
			Help: "Total number of failed calls to an external dependency",
		}, []string{"dependency", "operation", "error_type"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dependency_circuit_breaker_state",
			Help: "State of the circuit breaker (0=closed, 1=half_open, 2=open)",
		}, []string{"dependency"}),
	}
	if reg == nil {
		return m
	}
	m.requestsTotal = register(reg, m.requestsTotal)
	m.errorsTotal = register(reg, m.errorsTotal)
	m.state = register(reg, m.state)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.Warn("Failed to register breaker metric", zap.Error(err))
	}
	return c
}

// Execute runs fn with retry and backoff until it succeeds, the attempts are exhausted,
// the context ends, or the circuit opens.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= b.opts.MaxAttempts; attempt++ {
		if !b.allow() {
			logger.Error("Circuit breaker is OPEN - request blocked",
				zap.String("dependency", b.name),
				zap.String("operation", operation),
			)
			b.metrics.requestsTotal.WithLabelValues(b.name, operation, "circuit_breaker_open").Inc()
			if lastErr != nil {
				return fmt.Errorf("%s %s: %w (last error: %v)", b.name, operation, ErrCircuitOpen, lastErr)
			}
			return fmt.Errorf("%s %s: %w", b.name, operation, ErrCircuitOpen)
		}

		if attempt > 1 {
			logger.Warn("Dependency call retry",
				zap.String("dependency", b.name),
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		err := fn(timeoutCtx)
		if err == nil {
			b.onSuccess()
			b.metrics.requestsTotal.WithLabelValues(b.name, operation, "success").Inc()
			return nil
		}
		lastErr = err

		b.metrics.errorsTotal.WithLabelValues(b.name, operation, classifyError(err)).Inc()
		b.metrics.requestsTotal.WithLabelValues(b.name, operation, "failure").Inc()
		b.onFailure(operation)

		if attempt == b.opts.MaxAttempts {
			break
		}

		backoff := time.Duration(attempt) * b.opts.InitialBackoff
		if backoff > b.opts.MaxBackoff {
			backoff = b.opts.MaxBackoff
		}

		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("%s %s timed out: %w", b.name, operation, lastErr)
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", b.name, operation, b.opts.MaxAttempts, lastErr)
}

// allow reports whether a call may proceed, moving open to half-open after the cool-down.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitBreakerOpen && b.now().Sub(b.openedAt) >= b.opts.CoolDown {
		b.setState(CircuitBreakerHalfOpen)
		logger.Warn("Circuit breaker HALF-OPEN - allowing probe request",
			zap.String("dependency", b.name),
		)
	}
	return b.state != CircuitBreakerOpen
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state != CircuitBreakerClosed {
		b.setState(CircuitBreakerClosed)
		logger.Info("Circuit breaker CLOSED - dependency recovered",
			zap.String("dependency", b.name),
		)
	}
}

func (b *Breaker) onFailure(operation string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.opts.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			logger.Error("Circuit breaker OPEN - too many consecutive failures",
				zap.String("dependency", b.name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", b.consecutiveFailures),
			)
		}
		b.setState(CircuitBreakerOpen)
		b.openedAt = b.now()
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(s CircuitBreakerState) {
	b.state = s
	switch s {
	case CircuitBreakerClosed:
		b.metrics.state.WithLabelValues(b.name).Set(0)
	case CircuitBreakerHalfOpen:
		b.metrics.state.WithLabelValues(b.name).Set(1)
	case CircuitBreakerOpen:
		b.metrics.state.WithLabelValues(b.name).Set(2)
	}
}

// GetCircuitBreakerState returns the current circuit breaker state
func (b *Breaker) GetCircuitBreakerState() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// classifyError classifies errors for better metrics
func classifyError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "bucket not found") || strings.Contains(errMsg, "not found"):
		return "not_found"
	case strings.Contains(errMsg, "permission denied") || strings.Contains(errMsg, "access denied"):
		return "permission"
	default:
		return "unknown"
	}
}
