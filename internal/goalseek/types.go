package goalseek

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Defaults for the declarative goal surface.
const (
	DefaultThreshold   = 80.0
	DefaultMaxAttempts = 5
)

// Config is the immutable input to one Seek call.
type Config struct {
	// Goal is a human-readable description, used for logging and the
	// ${goal} template variable only.
	Goal string `json:"goal"`

	// Action is the command template run at the start of every attempt.
	Action string `json:"action"`

	// Validator is the command template whose output is scored.
	Validator string `json:"validate"`

	// Threshold is the score in [0, 100] that counts as success.
	Threshold float64 `json:"threshold"`

	// MaxAttempts bounds the number of iterations. Must be at least 1.
	MaxAttempts int `json:"max_attempts"`

	// Timeout is the wall-clock budget for the whole seek. Zero means none.
	Timeout time.Duration `json:"timeout,omitempty"`

	// FailOnIncomplete makes Evaluate report an unmet goal as an error.
	FailOnIncomplete bool `json:"fail_on_incomplete"`

	// Dir is the working directory passed to the executor.
	Dir string `json:"dir,omitempty"`

	// Env is layered into every command's environment.
	Env map[string]string `json:"env,omitempty"`
}

// Validate checks the config invariants.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Action) == "" {
		return invalidConfig("action command is required")
	}
	if strings.TrimSpace(c.Validator) == "" {
		return invalidConfig("validate command is required")
	}
	if math.IsNaN(c.Threshold) || c.Threshold < MinScore || c.Threshold > MaxScore {
		return invalidConfig("threshold must be between 0 and 100, got %v", c.Threshold)
	}
	if c.MaxAttempts < 1 {
		return invalidConfig("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.Timeout < 0 {
		return invalidConfig("timeout cannot be negative, got %s", c.Timeout)
	}
	return nil
}

// Attempt records one iteration. Attempts are never modified once appended
// to a History.
type Attempt struct {
	// Index is the 1-based ordinal.
	Index int `json:"index"`

	ActionCommand    string `json:"action_command"`
	ActionOutput     string `json:"action_output"`
	ActionExitCode   int    `json:"action_exit_code"`
	ValidateCommand  string `json:"validate_command,omitempty"`
	ValidationOutput string `json:"validation_output"`

	// ValidateExitCode is -1 when validation did not run to completion.
	ValidateExitCode int `json:"validate_exit_code"`

	Score Score    `json:"score"`
	Gaps  []string `json:"gaps,omitempty"`

	// RawGaps is the validator's gaps value as emitted, for ${validation.gaps}.
	RawGaps string `json:"raw_gaps,omitempty"`

	// Format names the output format the score was extracted from.
	Format Format `json:"format"`

	// TimedOut is set when the action or validation exceeded its
	// per-command timeout.
	TimedOut bool `json:"timed_out,omitempty"`

	// ValidationError holds why the validation command could not be run.
	ValidationError string `json:"validation_error,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Scored reports whether a score was extracted for this attempt.
func (a Attempt) Scored() bool {
	return a.Score.IsSet()
}

// History is the ordered, append-only record of a seek's attempts.
type History struct {
	attempts []Attempt
}

// Append records a finished attempt.
func (h *History) Append(a Attempt) {
	if len(a.Gaps) > 0 {
		a.Gaps = append([]string(nil), a.Gaps...)
	}
	h.attempts = append(h.attempts, a)
}

// Len returns the number of recorded attempts.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.attempts)
}

// Attempts returns a copy of the recorded attempts in order.
func (h *History) Attempts() []Attempt {
	if h == nil {
		return nil
	}
	out := make([]Attempt, len(h.attempts))
	copy(out, h.attempts)
	return out
}

// Last returns the most recent attempt.
func (h *History) Last() (Attempt, bool) {
	if h.Len() == 0 {
		return Attempt{}, false
	}
	return h.attempts[len(h.attempts)-1], true
}

// Scores returns every attempt's score in order, including NoScore entries.
func (h *History) Scores() []Score {
	if h == nil {
		return nil
	}
	out := make([]Score, len(h.attempts))
	for i, a := range h.attempts {
		out[i] = a.Score
	}
	return out
}

// Best returns the highest-scoring attempt. The first attempt wins ties.
// ok is false when no attempt was scored.
func (h *History) Best() (best Attempt, ok bool) {
	if h == nil {
		return Attempt{}, false
	}
	for _, a := range h.attempts {
		if a.Score.Better(best.Score) {
			best = a
			ok = true
		}
	}
	return best, ok
}

// BestScore returns the best score seen, or NoScore.
func (h *History) BestScore() Score {
	best, ok := h.Best()
	if !ok {
		return NoScore
	}
	return best.Score
}

// clone returns an independent copy for handing to callers.
func (h *History) clone() *History {
	return &History{attempts: h.Attempts()}
}

// MarshalJSON encodes the history as an array of attempts.
func (h *History) MarshalJSON() ([]byte, error) {
	attempts := h.Attempts()
	if attempts == nil {
		attempts = []Attempt{}
	}
	return json.Marshal(attempts)
}

// UnmarshalJSON decodes an array of attempts.
func (h *History) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &h.attempts)
}
