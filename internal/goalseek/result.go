package goalseek

import (
	"encoding/json"
	"time"
)

// Outcome tags the terminal state of a seek.
type Outcome string

// Terminal outcomes.
const (
	OutcomeSuccess            Outcome = "success"
	OutcomeMaxAttemptsReached Outcome = "max_attempts_reached"
	OutcomeConverged          Outcome = "converged"
	OutcomeTimedOut           Outcome = "timed_out"
	OutcomeFailed             Outcome = "failed"
)

// Result is the terminal state of one Seek call. It is one of *Success,
// *MaxAttemptsReached, *Converged, *TimedOut or *Failed; the set is closed.
type Result interface {
	// Outcome returns the variant tag.
	Outcome() Outcome

	// History returns every completed attempt.
	History() *History

	// Elapsed is the wall-clock duration of the seek.
	Elapsed() time.Duration

	// RunID identifies the seek in logs, spans and events.
	RunID() string

	sealed()
}

// base carries the fields shared by every variant.
type base struct {
	runID   string
	history *History
	elapsed time.Duration
}

func (b *base) History() *History {
	if b.history == nil {
		return &History{}
	}
	return b.history
}

func (b *base) Elapsed() time.Duration { return b.elapsed }
func (b *base) RunID() string          { return b.runID }
func (b *base) sealed()                {}

// Success means an attempt met the threshold. No attempts follow it.
type Success struct {
	base
	AttemptIndex int
	Score        Score
}

// Outcome implements Result.
func (*Success) Outcome() Outcome { return OutcomeSuccess }

// MaxAttemptsReached means the attempt budget ran out below threshold.
// BestScore is NoScore when no attempt could be scored.
type MaxAttemptsReached struct {
	base
	BestScore Score
}

// Outcome implements Result.
func (*MaxAttemptsReached) Outcome() Outcome { return OutcomeMaxAttemptsReached }

// Converged means recent scores stopped moving without reaching threshold.
type Converged struct {
	base
	StableScore Score
}

// Outcome implements Result.
func (*Converged) Outcome() Outcome { return OutcomeConverged }

// TimedOut means the session timeout elapsed. History holds only attempts
// that finished before the deadline.
type TimedOut struct {
	base
}

// Outcome implements Result.
func (*TimedOut) Outcome() Outcome { return OutcomeTimedOut }

// Failed means the seek aborted, typically because the action command could
// not be launched.
type Failed struct {
	base
	Err error
}

// Outcome implements Result.
func (*Failed) Outcome() Outcome { return OutcomeFailed }

// Error returns the failure message.
func (f *Failed) Error() string {
	if f.Err == nil {
		return string(OutcomeFailed)
	}
	return f.Err.Error()
}

// Unwrap returns the underlying failure.
func (f *Failed) Unwrap() error { return f.Err }

// FinalScore returns the score a caller should report for r: the success
// score, the best or stable score, or the best score in history otherwise.
func FinalScore(r Result) Score {
	switch v := r.(type) {
	case *Success:
		return v.Score
	case *MaxAttemptsReached:
		return v.BestScore
	case *Converged:
		return v.StableScore
	default:
		return r.History().BestScore()
	}
}

// BestAttempt returns the highest-scoring attempt of r.
func BestAttempt(r Result) (Attempt, bool) {
	return r.History().Best()
}

// Summary is the JSON form of a Result.
type Summary struct {
	RunID       string        `json:"run_id"`
	Outcome     Outcome       `json:"outcome"`
	Attempts    int           `json:"attempts"`
	FinalScore  Score         `json:"final_score"`
	Scored      bool          `json:"scored"`
	BestAttempt int           `json:"best_attempt,omitempty"`
	BestOutput  string        `json:"best_output,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	ElapsedText string        `json:"elapsed"`
	Error       string        `json:"error,omitempty"`
	History     *History      `json:"history"`
}

// Summarize flattens r into a Summary.
func Summarize(r Result) Summary {
	score := FinalScore(r)
	s := Summary{
		RunID:       r.RunID(),
		Outcome:     r.Outcome(),
		Attempts:    r.History().Len(),
		FinalScore:  score,
		Scored:      score.IsSet(),
		Elapsed:     r.Elapsed(),
		ElapsedText: r.Elapsed().Round(time.Millisecond).String(),
		History:     r.History(),
	}
	if best, ok := BestAttempt(r); ok {
		s.BestAttempt = best.Index
		s.BestOutput = best.ActionOutput
	}
	if f, ok := r.(*Failed); ok {
		s.Error = f.Error()
	}
	return s
}

// MarshalResult encodes r as JSON via Summarize.
func MarshalResult(r Result) ([]byte, error) {
	return json.Marshal(Summarize(r))
}
