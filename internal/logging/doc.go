// Package logging provides structured, context-aware logging for goalseek.
//
// # Overview
//
// Logger wraps zap. Every method takes a context.Context and prepends the
// correlation fields found in it:
//
//   - trace_id / span_id from the active OpenTelemetry span
//   - goal.run_id, goal.name from WithRun
//   - goal.attempt from WithAttempt
//
// so a single goal-seek invocation can be followed across attempt, command,
// and telemetry output.
//
// # Outputs
//
// Logs go to stdout (JSON or console encoding) and optionally to an
// OpenTelemetry LoggerProvider through the otelzap bridge. Stdout output is
// wrapped in a RedactingEncoder: validator output is arbitrary text and may
// carry credentials.
//
// # Sampling
//
// Below-error entries are sampled per tick when sampling is enabled. Error and
// above are never sampled.
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRun(ctx, runID, "coverage above 80%")
//	logger.Info(ctx, "seek started", zap.Float64("threshold", 80))
//
// # Testing
//
// NewTestLogger returns a Logger backed by zaptest/observer with assertion
// helpers.
package logging
