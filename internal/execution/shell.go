package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goalseek/internal/logging"
)

const (
	defaultShell     = "/bin/sh"
	defaultKillGrace = 2 * time.Second
	defaultMaxOutput = 4 << 20 // 4MB per stream
)

var errEmptyCommand = errors.New("empty command")

// ShellExecutor runs commands through a POSIX shell (`sh -c`).
type ShellExecutor struct {
	shell     string
	baseEnv   []string
	killGrace time.Duration
	maxOutput int
	logger    *logging.Logger
}

// ShellOption configures a ShellExecutor.
type ShellOption func(*ShellExecutor)

// WithShell sets the shell binary. Defaults to /bin/sh.
func WithShell(path string) ShellOption {
	return func(s *ShellExecutor) {
		if path != "" {
			s.shell = path
		}
	}
}

// WithBaseEnv replaces the inherited process environment.
func WithBaseEnv(env []string) ShellOption {
	return func(s *ShellExecutor) {
		s.baseEnv = env
	}
}

// WithKillGrace sets how long to wait for output pipes to close after the
// process group has been killed.
func WithKillGrace(d time.Duration) ShellOption {
	return func(s *ShellExecutor) {
		if d > 0 {
			s.killGrace = d
		}
	}
}

// WithMaxOutput caps how many bytes are kept per stream.
func WithMaxOutput(n int) ShellOption {
	return func(s *ShellExecutor) {
		if n > 0 {
			s.maxOutput = n
		}
	}
}

// WithLogger attaches a logger for command-level debug output.
func WithLogger(l *logging.Logger) ShellOption {
	return func(s *ShellExecutor) {
		s.logger = l
	}
}

// NewShellExecutor creates a ShellExecutor inheriting the current environment.
func NewShellExecutor(opts ...ShellOption) *ShellExecutor {
	s := &ShellExecutor{
		shell:     defaultShell,
		baseEnv:   os.Environ(),
		killGrace: defaultKillGrace,
		maxOutput: defaultMaxOutput,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.FromContext(context.Background())
	}
	return s
}

// Execute runs req.Command and waits for it to exit or for its deadline.
func (s *ShellExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, &LaunchError{Command: req.Command, Err: errEmptyCommand}
	}
	if req.Dir != "" {
		info, err := os.Stat(req.Dir)
		if err != nil {
			return nil, &LaunchError{Command: req.Command, Err: fmt.Errorf("working directory: %w", err)}
		}
		if !info.IsDir() {
			return nil, &LaunchError{Command: req.Command, Err: fmt.Errorf("working directory %s is not a directory", req.Dir)}
		}
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, s.shell, "-c", req.Command)
	cmd.Dir = req.Dir
	cmd.Env = append(append([]string{}, s.baseEnv...), req.EnvList()...)
	cmd.WaitDelay = s.killGrace
	configureProcessGroup(cmd)

	stdout := &cappedBuffer{max: s.maxOutput}
	stderr := &cappedBuffer{max: s.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	s.logger.Debug(ctx, "starting command",
		zap.String("command", req.Command),
		zap.String("dir", req.Dir),
		zap.Duration("timeout", req.Timeout))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Command: req.Command, Err: err}
	}
	waitErr := cmd.Wait()

	res := &Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}

	if runCtx.Err() != nil {
		res.TimedOut = true
		res.ExitCode = -1
		s.logger.Debug(ctx, "command terminated at deadline",
			zap.String("command", req.Command),
			zap.Duration("elapsed", res.Elapsed))
		return res, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// Exited, but a background child kept the pipes open.
			res.ExitCode = cmd.ProcessState.ExitCode()
		default:
			return res, fmt.Errorf("wait for %q: %w", req.Command, waitErr)
		}
	}

	if res.ExitCode == ExitNotFound || res.ExitCode == ExitNotExecutable {
		return res, &LaunchError{
			Command: req.Command,
			Err:     fmt.Errorf("shell exit %d: %s", res.ExitCode, firstLine(res.Stderr)),
		}
	}

	return res, nil
}

// cappedBuffer keeps at most max bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
