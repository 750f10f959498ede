package goalseek

import (
	"fmt"
	"time"
)

// Exit codes reported for a goal-seek step.
const (
	ExitSuccess    = 0
	ExitIncomplete = 1
	ExitError      = 2
)

// StepOutcome is how a finished seek reports to an enclosing workflow step.
type StepOutcome struct {
	Success  bool    `json:"success"`
	ExitCode int     `json:"exit_code"`
	Message  string  `json:"message"`
	Outcome  Outcome `json:"outcome"`
}

// Evaluate maps r to a step outcome. Success always succeeds and Failed is
// always an error wrapping ErrGoalFailed. The incomplete outcomes
// (MaxAttemptsReached, Converged, TimedOut) return an *IncompleteError when
// cfg.FailOnIncomplete is set, and an unsuccessful StepOutcome otherwise.
func Evaluate(r Result, cfg Config) (StepOutcome, error) {
	attempts := r.History().Len()

	switch v := r.(type) {
	case *Success:
		return StepOutcome{
			Success:  true,
			ExitCode: ExitSuccess,
			Outcome:  OutcomeSuccess,
			Message: fmt.Sprintf("goal %q achieved at attempt %d of %d (score %s)",
				cfg.Goal, v.AttemptIndex, attempts, v.Score),
		}, nil

	case *Failed:
		return StepOutcome{ExitCode: ExitError, Outcome: OutcomeFailed},
			fmt.Errorf("%w: goal %q: %w", ErrGoalFailed, cfg.Goal, v.Err)
	}

	best := FinalScore(r)
	var msg string
	switch r.(type) {
	case *MaxAttemptsReached:
		msg = fmt.Sprintf("goal %q not achieved after %d attempts (best score %s)", cfg.Goal, attempts, best)
	case *Converged:
		msg = fmt.Sprintf("goal %q converged at score %s after %d attempts without reaching %v",
			cfg.Goal, best, attempts, cfg.Threshold)
	default:
		msg = fmt.Sprintf("goal %q timed out after %d attempts in %s (best score %s)",
			cfg.Goal, attempts, r.Elapsed().Round(time.Millisecond), best)
	}

	if cfg.FailOnIncomplete {
		return StepOutcome{ExitCode: ExitIncomplete, Outcome: r.Outcome(), Message: msg},
			&IncompleteError{Outcome: r.Outcome(), Goal: cfg.Goal, Attempts: attempts, BestScore: best}
	}
	return StepOutcome{
		Success:  false,
		ExitCode: ExitIncomplete,
		Outcome:  r.Outcome(),
		Message:  msg,
	}, nil
}
