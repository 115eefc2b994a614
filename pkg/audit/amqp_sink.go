package audit

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"chatcore-backend/pkg/logger"
)

// NewAMQPSink publishes events to a topic exchange. It degrades to a NoopSink
// when the URL is empty or the broker cannot be reached at startup.
func NewAMQPSink(amqpURL, exchange, routingKey string) Sink {
	if amqpURL == "" {
		logger.Info("RabbitMQ audit sink disabled, using noop", zap.String("reason", "empty amqp url"))
		return NoopSink{Reason: "empty amqp url"}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warn("RabbitMQ audit sink disabled, using noop", zap.Error(err))
		return NoopSink{Reason: err.Error()}
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn("RabbitMQ audit sink disabled, using noop", zap.Error(err))
		_ = conn.Close()
		return NoopSink{Reason: err.Error()}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		logger.Warn("RabbitMQ audit sink disabled, using noop", zap.Error(err))
		_ = ch.Close()
		_ = conn.Close()
		return NoopSink{Reason: err.Error()}
	}

	logger.Info("RabbitMQ audit sink connected", zap.String("exchange", exchange))
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}
}

// AMQPSink publishes JSON events as persistent messages
type AMQPSink struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// Write publishes one event, routed by "<routingKey>.<event type>"
func (s *AMQPSink) Write(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.ch.PublishWithContext(ctx, s.exchange, fmt.Sprintf("%s.%s", s.routingKey, event.EventType), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID.String(),
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	return nil
}

// Close closes the channel and connection
func (s *AMQPSink) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// NoopSink drops events, logging them at debug level
type NoopSink struct {
	Reason string
}

func (NoopSink) Write(ctx context.Context, event *Event) error {
	logger.FromContext(ctx).Debug("Audit noop write",
		zap.String("event_type", string(event.EventType)),
		zap.String("resource", event.Resource))
	return nil
}

func (NoopSink) Close() error { return nil }

// SinkMode reports the sink mode for startup logging
func SinkMode(s Sink) string {
	switch s.(type) {
	case *AMQPSink:
		return "amqp"
	case NoopSink:
		return "noop"
	case *RedisSink:
		return "redis"
	default:
		return "unknown"
	}
}
