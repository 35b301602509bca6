// Package events publishes bot session lifecycle events on Redis pub/sub so
// other services can react without polling the transcript table.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	TypeStarted    = "session.started"
	TypeInProgress = "session.in_progress"
	TypeFinished   = "session.finished"
)

// Event is the JSON payload published for every lifecycle transition.
type Event struct {
	Type       string    `json:"event_type"`
	MeetingID  string    `json:"meeting_id"`
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	ExitReason string    `json:"exit_reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// New returns an Event stamped with the current time.
func New(eventType, meetingID, runID, status string) Event {
	return Event{
		Type:      eventType,
		MeetingID: meetingID,
		RunID:     runID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Source:    "meetbot",
	}
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event. It is used when no Redis address is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// redisPublisher is the subset of *redis.Client used here.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events to "<prefix>.<event_type>" channels.
type RedisPublisher struct {
	client redisPublisher
	prefix string
}

// NewRedisPublisher wraps a Redis client.
func NewRedisPublisher(client redisPublisher, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "meetbot"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the channel an event type is published on.
func (p *RedisPublisher) Channel(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish marshals ev and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	if err := p.client.Publish(ctx, p.Channel(ev.Type), data).Err(); err != nil {
		return fmt.Errorf("events: publish %s for %s: %w", ev.Type, ev.MeetingID, err)
	}
	return nil
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("events: connect to redis %s: %w", addr, err)
	}
	return client, nil
}
