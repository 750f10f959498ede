package goalseek

import (
	"context"
	"time"
)

// EventType names a lifecycle event.
type EventType string

// Lifecycle events, published in this order: one seek.started, one
// attempt.completed per recorded attempt, one seek.finished.
const (
	EventSeekStarted      EventType = "seek.started"
	EventAttemptCompleted EventType = "attempt.completed"
	EventSeekFinished     EventType = "seek.finished"
)

// Event describes a step in a seek's lifecycle.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id"`
	Goal  string    `json:"goal"`
	Time  time.Time `json:"time"`

	// Set on seek.started.
	Threshold   float64 `json:"threshold,omitempty"`
	MaxAttempts int     `json:"max_attempts,omitempty"`

	// Set on attempt.completed.
	Attempt *Attempt `json:"attempt,omitempty"`

	// Set on seek.finished.
	Outcome    Outcome       `json:"outcome,omitempty"`
	FinalScore *Score        `json:"final_score,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// EventSink receives lifecycle events. Publish errors are logged by the
// engine and never change the outcome of a seek.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event) error

// Publish calls f.
func (f EventSinkFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
