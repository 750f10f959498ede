// Goalseek runs an action repeatedly until a validator scores it above a
// threshold.
//
// Usage:
//
//	# Run a goal definition
//	goalseek run -f goal.yaml
//
//	# Machine-readable result, status server on
//	goalseek run -f goal.yaml --json --metrics
//
//	# Validate a goal file without running it
//	goalseek check -f goal.yaml
//
//	# See what score a validator's output yields
//	./validate.sh | goalseek extract -
//
// Application settings are read from $XDG_CONFIG_HOME/goalseek/config.yaml
// (or --config) and GOALSEEK_* environment variables. See internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/goalseek/internal/goalseek"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries a process exit code. A nil err means the command has
// already reported its outcome and nothing more is printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return goalseek.ExitSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return goalseek.ExitError
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "goalseek",
		Short: "Iterate an action until a validator scores it above a threshold",
		Long: `goalseek runs an action command, scores the result with a validation
command, and repeats until the score reaches the threshold, the attempt
budget is spent, the scores stop improving, or the timeout expires.

Exit codes: 0 goal achieved, 1 goal not achieved, 2 error.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "goalseek %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", gitCommit)
			fmt.Fprintf(out, "  built:  %s\n", buildDate)
		},
	}
}
