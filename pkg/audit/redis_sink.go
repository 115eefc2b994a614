package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Retention is how long daily audit lists are kept in redis
const Retention = 90 * 24 * time.Hour

// RedisSink stores events in one redis list per UTC day
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink creates a redis-backed sink
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func dailyKey(t time.Time) string {
	return fmt.Sprintf("audit:events:%s", t.UTC().Format("2006-01-02"))
}

// Write pushes the event onto today's list
func (s *RedisSink) Write(ctx context.Context, event *Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := dailyKey(event.Timestamp)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, eventJSON)
	pipe.Expire(ctx, key, Retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the redis client is owned by the caller
func (s *RedisSink) Close() error { return nil }

// Events returns up to limit events of the given day, newest first. An empty
// eventType matches every type.
func (s *RedisSink) Events(ctx context.Context, day time.Time, eventType EventType, limit int) ([]*Event, error) {
	members, err := s.client.LRange(ctx, dailyKey(day), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit events: %w", err)
	}

	events := make([]*Event, 0, limit)
	for _, member := range members {
		var event Event
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			continue
		}
		if eventType != "" && event.EventType != eventType {
			continue
		}
		events = append(events, &event)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}
