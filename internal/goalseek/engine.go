package goalseek

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/goalseek/internal/execution"
	"github.com/fyrsmithlabs/goalseek/internal/logging"
)

// Command kinds, used as metric labels and span attributes.
const (
	KindAction   = "action"
	KindValidate = "validate"
)

// traceOutputLimit caps command output copied into trace-level logs.
const traceOutputLimit = 8 << 10

// errInterrupted reports that the session context ended while an attempt
// was in flight. The attempt is discarded.
var errInterrupted = errors.New("attempt interrupted")

// Engine runs goal-seek loops. An Engine holds no per-seek state and may be
// reused, but each Seek call is strictly sequential.
type Engine struct {
	exec           execution.Executor
	logger         *logging.Logger
	tracer         trace.Tracer
	rec            *recorder
	sinks          []EventSink
	commandTimeout time.Duration
	minInterval    time.Duration
	newRunID       func() string
	now            func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracerProvider sets the provider for goalseek.seek and
// goalseek.attempt spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets the OTel meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.rec.prom = m }
}

// WithEventSink adds a lifecycle event sink. May be given more than once.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
}

// WithTracker feeds lifecycle events into t.
func WithTracker(t *Tracker) Option {
	return WithEventSink(t)
}

// WithCommandTimeout bounds every action and validation command.
func WithCommandTimeout(d time.Duration) Option {
	return func(e *Engine) { e.commandTimeout = d }
}

// WithMinAttemptInterval spaces attempt starts at least d apart.
func WithMinAttemptInterval(d time.Duration) Option {
	return func(e *Engine) { e.minInterval = d }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newRunID = gen
		}
	}
}

// NewEngine creates an engine that runs commands through exec.
func NewEngine(exec execution.Executor, opts ...Option) *Engine {
	e := &Engine{
		exec:     exec,
		logger:   logging.NewNop(),
		rec:      &recorder{},
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.tracerProvider == nil {
		e.tracerProvider = otel.GetTracerProvider()
	}
	if e.meterProvider == nil {
		e.meterProvider = otel.GetMeterProvider()
	}
	e.tracer = e.tracerProvider.Tracer(instrumentationName)
	e.rec.otel = newOtelInstruments(e.meterProvider)
	return e
}

// seek is the mutable state of one Seek call.
type seek struct {
	cfg     Config
	runID   string
	start   time.Time
	history *History
	span    trace.Span
}

// Seek runs the loop described by cfg until it reaches a terminal state.
// It never returns nil and never panics on command failures; fatal
// conditions are reported as *Failed.
func (e *Engine) Seek(ctx context.Context, cfg Config) Result {
	s := &seek{
		cfg:     cfg,
		runID:   e.newRunID(),
		start:   e.now(),
		history: &History{},
	}

	ctx = logging.WithRun(ctx, s.runID, cfg.Goal)
	ctx, s.span = e.tracer.Start(ctx, "goalseek.seek", trace.WithAttributes(
		attribute.String("goalseek.run_id", s.runID),
		attribute.String("goalseek.goal", cfg.Goal),
		attribute.Float64("goalseek.threshold", cfg.Threshold),
		attribute.Int("goalseek.max_attempts", cfg.MaxAttempts),
	))
	defer s.span.End()

	e.rec.seekStarted()

	if err := cfg.Validate(); err != nil {
		return e.finish(ctx, s, &Failed{Err: err})
	}

	e.logger.Info(ctx, "goal-seek started",
		zap.String("goal", cfg.Goal),
		zap.Float64("threshold", cfg.Threshold),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Duration("timeout", cfg.Timeout),
	)
	e.publish(ctx, Event{
		Type:        EventSeekStarted,
		RunID:       s.runID,
		Goal:        cfg.Goal,
		Time:        s.start,
		Threshold:   cfg.Threshold,
		MaxAttempts: cfg.MaxAttempts,
	})

	session := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		session, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var limiter *rate.Limiter
	if e.minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(e.minInterval), 1)
	}

	for index := 1; ; index++ {
		if session.Err() != nil {
			return e.finish(ctx, s, e.interrupted(ctx))
		}
		if limiter != nil {
			if err := pace(session, limiter); err != nil {
				return e.finish(ctx, s, e.interrupted(ctx))
			}
		}

		var previous *Attempt
		if last, ok := s.history.Last(); ok {
			previous = &last
		}

		attempt, err := e.runAttempt(session, cfg, index, previous)
		if err != nil {
			if errors.Is(err, errInterrupted) {
				return e.finish(ctx, s, e.interrupted(ctx))
			}
			return e.finish(ctx, s, &Failed{Err: err})
		}

		s.history.Append(attempt)
		e.rec.attempt(ctx, attempt)
		e.publish(ctx, Event{
			Type:    EventAttemptCompleted,
			RunID:   s.runID,
			Goal:    cfg.Goal,
			Time:    e.now(),
			Attempt: &attempt,
		})

		if attempt.Score.OrZero() >= cfg.Threshold {
			return e.finish(ctx, s, &Success{AttemptIndex: attempt.Index, Score: attempt.Score})
		}
		if index >= cfg.MaxAttempts {
			return e.finish(ctx, s, &MaxAttemptsReached{BestScore: s.history.BestScore()})
		}
		if stable, ok := convergedScore(s.history.Scores()); ok {
			return e.finish(ctx, s, &Converged{StableScore: stable})
		}
	}
}

// interrupted maps an ended session to a terminal result: explicit
// cancellation of the caller's context is a failure, any deadline is a
// timeout.
func (e *Engine) interrupted(ctx context.Context) Result {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Failed{Err: ctx.Err()}
	}
	return &TimedOut{}
}

// pace blocks until limiter admits the next attempt. A wait that outlasts
// ctx ends with ctx, not before it.
func pace(ctx context.Context, limiter *rate.Limiter) error {
	r := limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// runAttempt executes one action/validate iteration. The returned Attempt is
// complete unless err is non-nil, in which case it must be discarded.
func (e *Engine) runAttempt(ctx context.Context, cfg Config, index int, previous *Attempt) (Attempt, error) {
	actx := NewAttemptContext(cfg.Goal, index, previous)
	ctx = logging.WithAttempt(ctx, index)
	ctx, span := e.tracer.Start(ctx, "goalseek.attempt", trace.WithAttributes(
		attribute.Int("goalseek.attempt", index),
	))
	defer span.End()

	a := Attempt{
		Index:            index,
		ActionCommand:    actx.Render(cfg.Action),
		ValidateExitCode: -1,
		Format:           FormatNone,
		StartedAt:        e.now(),
	}

	env := maps.Clone(cfg.Env)
	if env == nil {
		env = make(map[string]string)
	}
	maps.Copy(env, actx.Env())

	res, err := e.run(ctx, KindAction, a.ActionCommand, cfg.Dir, env)
	switch {
	case err != nil && ctx.Err() != nil:
		return a, errInterrupted
	case err != nil && execution.IsLaunchError(err):
		e.logger.Error(ctx, "action could not be launched",
			zap.String("command", a.ActionCommand),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "action launch failed")
		return a, err
	case err != nil:
		// The action failed in a way the executor could not classify. Treat
		// it as a failed refinement and let the validator judge.
		e.logger.Warn(ctx, "action failed", zap.String("command", a.ActionCommand), zap.Error(err))
		a.ActionExitCode = -1
		a.ActionOutput = err.Error()
	case res.TimedOut && ctx.Err() != nil:
		return a, errInterrupted
	case res.TimedOut:
		e.logger.Warn(ctx, "action timed out",
			zap.String("command", a.ActionCommand),
			zap.Duration("timeout", e.commandTimeout),
		)
		a.ActionOutput = combinedOutput(res)
		a.ActionExitCode = res.ExitCode
		a.TimedOut = true
		return e.complete(ctx, span, a), nil
	default:
		a.ActionOutput = combinedOutput(res)
		a.ActionExitCode = res.ExitCode
		if res.ExitCode != 0 {
			e.logger.Warn(ctx, "action exited non-zero",
				zap.String("command", a.ActionCommand),
				zap.Int("exit_code", res.ExitCode),
			)
		}
	}

	a.ValidateCommand = actx.Render(cfg.Validator)
	vres, err := e.run(ctx, KindValidate, a.ValidateCommand, cfg.Dir, env)
	switch {
	case err != nil && ctx.Err() != nil:
		return a, errInterrupted
	case err != nil:
		// A validator that cannot run yields an unscored attempt rather
		// than aborting the seek.
		e.logger.Warn(ctx, "validation could not be run",
			zap.String("command", a.ValidateCommand),
			zap.Error(err),
		)
		a.ValidationError = err.Error()
	case vres.TimedOut && ctx.Err() != nil:
		return a, errInterrupted
	case vres.TimedOut:
		e.logger.Warn(ctx, "validation timed out",
			zap.String("command", a.ValidateCommand),
			zap.Duration("timeout", e.commandTimeout),
		)
		a.ValidationOutput = validationText(vres)
		a.ValidateExitCode = vres.ExitCode
		a.TimedOut = true
	default:
		a.ValidationOutput = validationText(vres)
		a.ValidateExitCode = vres.ExitCode
		ex := Extract(vres.Stdout, vres.Stderr)
		a.Score = ex.Score
		a.Gaps = ex.Gaps
		a.RawGaps = ex.RawGaps
		a.Format = ex.Format
	}

	return e.complete(ctx, span, a), nil
}

// complete stamps the elapsed time and reports the finished attempt.
func (e *Engine) complete(ctx context.Context, span trace.Span, a Attempt) Attempt {
	a.Elapsed = e.now().Sub(a.StartedAt)

	span.SetAttributes(
		attribute.Bool("goalseek.scored", a.Scored()),
		attribute.Float64("goalseek.score", a.Score.OrZero()),
		attribute.String("goalseek.format", string(a.Format)),
		attribute.Bool("goalseek.timed_out", a.TimedOut),
	)

	e.logger.Info(ctx, "attempt completed",
		zap.String("score", a.Score.String()),
		zap.Bool("scored", a.Scored()),
		zap.String("format", string(a.Format)),
		zap.Int("gaps", len(a.Gaps)),
		zap.Bool("timed_out", a.TimedOut),
		zap.Duration("elapsed", a.Elapsed),
	)
	e.logger.Trace(ctx, "attempt output",
		logging.Truncated("action_output", a.ActionOutput, traceOutputLimit),
		logging.Truncated("validation_output", a.ValidationOutput, traceOutputLimit),
	)
	return a
}

// run executes one command and records its metrics.
func (e *Engine) run(ctx context.Context, kind, command, dir string, env map[string]string) (*execution.Result, error) {
	e.logger.Debug(ctx, "running command", zap.String("kind", kind), zap.String("command", command))

	started := e.now()
	res, err := e.exec.Execute(ctx, execution.Request{
		Command: command,
		Dir:     dir,
		Env:     env,
		Timeout: e.commandTimeout,
	})

	elapsed := e.now().Sub(started)
	if res != nil && res.Elapsed > 0 {
		elapsed = res.Elapsed
	}
	e.rec.command(kind, elapsed, res != nil && res.TimedOut)

	if err != nil {
		return nil, fmt.Errorf("%s command: %w", kind, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%s command: executor returned no result", kind)
	}
	return res, nil
}

// finish stamps the shared result fields, then logs, records and publishes
// the outcome.
func (e *Engine) finish(ctx context.Context, s *seek, r Result) Result {
	elapsed := e.now().Sub(s.start)
	b := base{runID: s.runID, history: s.history.clone(), elapsed: elapsed}

	switch v := r.(type) {
	case *Success:
		v.base = b
	case *MaxAttemptsReached:
		v.base = b
	case *Converged:
		v.base = b
	case *TimedOut:
		v.base = b
	case *Failed:
		v.base = b
	}

	final := FinalScore(r)
	fields := []zap.Field{
		zap.String("outcome", string(r.Outcome())),
		zap.Int("attempts", s.history.Len()),
		zap.String("final_score", final.String()),
		zap.Duration("elapsed", elapsed),
	}

	s.span.SetAttributes(
		attribute.String("goalseek.outcome", string(r.Outcome())),
		attribute.Int("goalseek.attempts", s.history.Len()),
		attribute.Bool("goalseek.scored", final.IsSet()),
		attribute.Float64("goalseek.final_score", final.OrZero()),
	)

	ev := Event{
		Type:     EventSeekFinished,
		RunID:    s.runID,
		Goal:     s.cfg.Goal,
		Time:     e.now(),
		Outcome:  r.Outcome(),
		Attempts: s.history.Len(),
		Elapsed:  elapsed,
	}
	if final.IsSet() {
		ev.FinalScore = &final
	}

	if f, ok := r.(*Failed); ok {
		s.span.RecordError(f.Err)
		s.span.SetStatus(codes.Error, f.Error())
		ev.Error = f.Error()
		e.logger.Error(ctx, "goal-seek failed", append(fields, zap.Error(f.Err))...)
	} else {
		e.logger.Info(ctx, "goal-seek finished", fields...)
	}

	e.rec.seekFinished(ctx, r.Outcome(), elapsed)
	e.publish(context.WithoutCancel(ctx), ev)
	return r
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			e.logger.Warn(ctx, "event publish failed",
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

// combinedOutput joins stdout and stderr.
func combinedOutput(res *execution.Result) string {
	switch {
	case res.Stderr == "":
		return res.Stdout
	case res.Stdout == "":
		return res.Stderr
	default:
		return strings.TrimRight(res.Stdout, "\n") + "\n" + res.Stderr
	}
}

// validationText is the validator output exposed to the next attempt:
// stdout, or stderr when stdout is blank.
func validationText(res *execution.Result) string {
	if strings.TrimSpace(res.Stdout) == "" {
		return res.Stderr
	}
	return res.Stdout
}
