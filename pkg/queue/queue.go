package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Enqueuer accepts jobs for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) error
}

// Job handles one message type.
type Job interface {
	// Type is the message type routed to this job.
	Type() string

	Handle(ctx context.Context, payload json.RawMessage) error
}

// Config controls the worker pool and the retry schedule.
type Config struct {
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParsePayload decodes a job payload into T.
func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	var out T
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
