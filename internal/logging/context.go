package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if run := RunFromContext(ctx); run != nil {
		fields = append(fields, zap.String("goal.run_id", run.ID))
		if run.Goal != "" {
			fields = append(fields, zap.String("goal.name", run.Goal))
		}
	}

	if attempt := AttemptFromContext(ctx); attempt > 0 {
		fields = append(fields, zap.Int("goal.attempt", attempt))
	}

	return fields
}

type runCtxKey struct{}
type attemptCtxKey struct{}
type loggerCtxKey struct{}

// Run identifies one goal-seek invocation.
type Run struct {
	ID   string
	Goal string
}

// WithRun tags ctx with the invocation's run id and goal description.
// Panics if id is empty.
func WithRun(ctx context.Context, id, goal string) context.Context {
	if id == "" {
		panic("logging: run id cannot be empty")
	}
	return context.WithValue(ctx, runCtxKey{}, &Run{ID: id, Goal: goal})
}

// RunFromContext returns the run stored by WithRun, or nil.
func RunFromContext(ctx context.Context) *Run {
	if r, ok := ctx.Value(runCtxKey{}).(*Run); ok {
		return r
	}
	return nil
}

// WithAttempt tags ctx with a 1-based attempt index.
// Panics if index is not positive.
func WithAttempt(ctx context.Context, index int) context.Context {
	if index < 1 {
		panic("logging: attempt index must be >= 1")
	}
	return context.WithValue(ctx, attemptCtxKey{}, index)
}

// AttemptFromContext returns the attempt index, or 0 when unset.
func AttemptFromContext(ctx context.Context) int {
	if a, ok := ctx.Value(attemptCtxKey{}).(int); ok {
		return a
	}
	return 0
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
