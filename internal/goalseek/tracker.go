package goalseek

import (
	"context"
	"sync"
	"time"
)

// State of a tracked seek.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// Status is a point-in-time view of a seek.
type Status struct {
	RunID       string        `json:"run_id,omitempty"`
	Goal        string        `json:"goal,omitempty"`
	State       string        `json:"state"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Threshold   float64       `json:"threshold,omitempty"`
	LastScore   Score         `json:"last_score"`
	BestScore   Score         `json:"best_score"`
	Scores      []Score       `json:"scores"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	Outcome     Outcome       `json:"outcome,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Tracker keeps the latest Status of the seek it observes. It is an
// EventSink and is safe for concurrent readers.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{
		status: Status{State: StateIdle},
		now:    time.Now,
	}
}

// Publish implements EventSink.
func (t *Tracker) Publish(_ context.Context, ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case EventSeekStarted:
		t.status = Status{
			RunID:       ev.RunID,
			Goal:        ev.Goal,
			State:       StateRunning,
			MaxAttempts: ev.MaxAttempts,
			Threshold:   ev.Threshold,
			StartedAt:   ev.Time,
		}
	case EventAttemptCompleted:
		if ev.Attempt == nil || ev.RunID != t.status.RunID {
			return nil
		}
		t.status.Attempt = ev.Attempt.Index
		t.status.LastScore = ev.Attempt.Score
		t.status.Scores = append(t.status.Scores, ev.Attempt.Score)
		if ev.Attempt.Score.Better(t.status.BestScore) {
			t.status.BestScore = ev.Attempt.Score
		}
	case EventSeekFinished:
		if ev.RunID != t.status.RunID {
			return nil
		}
		t.status.State = string(ev.Outcome)
		t.status.Outcome = ev.Outcome
		t.status.Elapsed = ev.Elapsed
		t.status.Error = ev.Error
	}
	return nil
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	s.Scores = append([]Score(nil), t.status.Scores...)
	if s.State == StateRunning && !s.StartedAt.IsZero() {
		s.Elapsed = t.now().Sub(s.StartedAt)
	}
	return s
}

// Running reports whether a seek is in progress.
func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.State == StateRunning
}
