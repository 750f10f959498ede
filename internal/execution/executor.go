package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrLaunch reports that a command could not be started at all.
var ErrLaunch = errors.New("command could not be launched")

// Exit codes a POSIX shell uses when it cannot run the requested program.
const (
	ExitNotExecutable = 126
	ExitNotFound      = 127
)

// Request describes one command invocation.
type Request struct {
	// Command is the full command line, interpreted by the executor's shell.
	Command string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds additional environment variables layered over the
	// executor's base environment.
	Env map[string]string

	// Timeout bounds this single command. Zero means no per-command limit;
	// the context deadline still applies.
	Timeout time.Duration
}

// EnvList returns Env as sorted KEY=VALUE pairs.
func (r Request) EnvList() []string {
	if len(r.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+r.Env[k])
	}
	return out
}

// Result is the captured outcome of a started command.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Elapsed  time.Duration `json:"elapsed"`

	// TimedOut is set when the command was terminated because its deadline
	// passed. Stdout and Stderr hold whatever was captured before that.
	TimedOut bool `json:"timed_out,omitempty"`
}

// Success reports whether the command ran to completion with exit status 0.
func (r *Result) Success() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// Executor runs commands on behalf of the engine.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (*Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// LaunchError wraps the reason a command could not be started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLaunch) true for every LaunchError.
func (e *LaunchError) Is(target error) bool {
	return target == ErrLaunch
}

// IsLaunchError reports whether err is, or wraps, a launch failure.
func IsLaunchError(err error) bool {
	return errors.Is(err, ErrLaunch)
}
