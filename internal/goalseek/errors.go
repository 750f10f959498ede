package goalseek

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrInvalidConfig indicates a Config that violates its invariants.
	ErrInvalidConfig = errors.New("invalid goal-seek config")

	// ErrGoalIncomplete indicates the goal was not reached and the caller
	// asked for incomplete outcomes to be treated as errors.
	ErrGoalIncomplete = errors.New("goal not reached")

	// ErrGoalFailed indicates the seek aborted with a fatal error.
	ErrGoalFailed = errors.New("goal-seek failed")
)

// IncompleteError describes a seek that ended without reaching its
// threshold while fail_on_incomplete was set.
type IncompleteError struct {
	Outcome   Outcome
	Goal      string
	Attempts  int
	BestScore Score
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("goal %q not reached: %s after %d attempts (best score %s)",
		e.Goal, e.Outcome, e.Attempts, e.BestScore)
}

// Is makes errors.Is(err, ErrGoalIncomplete) true.
func (e *IncompleteError) Is(target error) bool {
	return target == ErrGoalIncomplete
}

// IsIncomplete reports whether err is an incomplete-goal error.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrGoalIncomplete)
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
