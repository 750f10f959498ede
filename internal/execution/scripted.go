package execution

import (
	"context"
	"sync"
	"time"
)

// Step is one canned response of a ScriptedExecutor.
type Step struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Err, when set, is returned instead of a Result.
	Err error

	// Delay simulates a command that runs this long. If the request's
	// deadline passes first, the step reports TimedOut.
	Delay time.Duration
}

// Output is a Step that prints stdout and exits 0.
func Output(stdout string) Step {
	return Step{Stdout: stdout}
}

// ScriptedExecutor replays Steps keyed by invocation index. The first call
// gets Steps[0], the second Steps[1], and so on. Once the script is exhausted
// the final step is repeated.
type ScriptedExecutor struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScriptedExecutor creates an executor that replays steps in order.
func NewScriptedExecutor(steps ...Step) *ScriptedExecutor {
	return &ScriptedExecutor{steps: steps}
}

// Execute returns the next scripted step.
func (s *ScriptedExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	var step Step
	if len(s.steps) > 0 {
		if idx >= len(s.steps) {
			idx = len(s.steps) - 1
		}
		step = s.steps[idx]
	}
	s.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}

	res := &Result{
		Stdout:   step.Stdout,
		Stderr:   step.Stderr,
		ExitCode: step.ExitCode,
		Elapsed:  step.Delay,
	}
	if step.Delay <= 0 {
		return res, nil
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	timer := time.NewTimer(step.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return res, nil
	case <-runCtx.Done():
		return &Result{ExitCode: -1, Elapsed: time.Since(start), TimedOut: true}, nil
	}
}

// Requests returns every request received so far, in order.
func (s *ScriptedExecutor) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns the number of Execute invocations.
func (s *ScriptedExecutor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
