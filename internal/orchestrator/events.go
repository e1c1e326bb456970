package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType classifies a swarm lifecycle event.
type EventType string

const (
	EventIteration     EventType = "iteration_started"
	EventTaskClaimed   EventType = "task_claimed"
	EventTaskCompleted EventType = "task_completed"
	EventAgentSkipped  EventType = "agent_skipped"
	EventAgentFailed   EventType = "agent_failed"
)

// Event is one entry in the swarm activity stream.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	TaskID    int64     `json:"task_id,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const eventStream = "swarmfield:events"

// EventLog records swarm activity in a capped Redis stream so operators
// can follow a run without scraping logs.
type EventLog struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewEventLog connects to Redis and verifies the connection.
func NewEventLog(redisURL string, logger *zap.Logger) (*EventLog, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EventLog{rdb: rdb, logger: logger}, nil
}

// Publish appends an event to the stream.
func (el *EventLog) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.Timestamp = time.Now()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = el.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Recent returns the latest events, newest first.
func (el *EventLog) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	msgs, err := el.rdb.XRevRangeN(ctx, eventStream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	events := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var ev Event
		if json.Unmarshal([]byte(data), &ev) == nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

// Close shuts down the Redis connection.
func (el *EventLog) Close() error {
	return el.rdb.Close()
}
