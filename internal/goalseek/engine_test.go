package goalseek

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/goalseek/internal/execution"
	"github.com/fyrsmithlabs/goalseek/internal/logging"
	"github.com/fyrsmithlabs/goalseek/internal/telemetry"
)

// validations interleaves a successful action step before each validator
// output, matching the engine's action-then-validate call order.
func validations(outputs ...string) []execution.Step {
	steps := make([]execution.Step, 0, 2*len(outputs))
	for _, out := range outputs {
		steps = append(steps, execution.Output("refined"), execution.Output(out))
	}
	return steps
}

func scoreOutputs(vals ...int) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = fmt.Sprintf("score: %d", v)
	}
	return out
}

func testConfig(threshold float64, maxAttempts int) Config {
	return Config{
		Goal:        "improve",
		Action:      "improve --previous ${validation.score}",
		Validator:   "validate",
		Threshold:   threshold,
		MaxAttempts: maxAttempts,
	}
}

func newEngine(exec execution.Executor, opts ...Option) (*Engine, *logging.TestLogger) {
	logger := logging.NewTestLogger()
	opts = append([]Option{WithLogger(logger.Logger)}, opts...)
	return NewEngine(exec, opts...), logger
}

func TestSeek_ImprovingScoresSucceed(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(40, 65, 82)...)...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 5))

	success, ok := result.(*Success)
	require.True(t, ok, "got %s", result.Outcome())
	assert.Equal(t, 3, success.AttemptIndex)
	assert.Equal(t, Scored(82), success.Score)
	assert.Equal(t, 3, result.History().Len())
	assert.Equal(t, 6, exec.Calls())
	assert.NotEmpty(t, result.RunID())
}

func TestSeek_FlatScoresConverge(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(50, 51, 50)...)...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(90, 10))

	converged, ok := result.(*Converged)
	require.True(t, ok, "got %s", result.Outcome())
	assert.Equal(t, Scored(50), converged.StableScore)
	assert.Equal(t, 3, result.History().Len())
}

func TestSeek_MaxAttemptsReportsBest(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(60, 45)...)...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 2))

	maxed, ok := result.(*MaxAttemptsReached)
	require.True(t, ok, "got %s", result.Outcome())
	assert.Equal(t, Scored(60), maxed.BestScore)
	assert.Equal(t, 2, result.History().Len())

	best, ok := BestAttempt(result)
	require.True(t, ok)
	assert.Equal(t, 1, best.Index)
}

func TestSeek_UnparsableValidatorHasNoBestScore(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations("looks good to me")...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 3))

	maxed, ok := result.(*MaxAttemptsReached)
	require.True(t, ok, "got %s", result.Outcome())
	assert.False(t, maxed.BestScore.IsSet())
	require.Equal(t, 3, result.History().Len())
	for _, a := range result.History().Attempts() {
		assert.False(t, a.Scored())
		assert.Equal(t, FormatNone, a.Format)
	}
}

func TestSeek_ConvergenceNeverPreemptsFinalAttempt(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(50, 51, 50)...)...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(90, 3))

	assert.Equal(t, OutcomeMaxAttemptsReached, result.Outcome())
}

func TestSeek_ConvergenceNeverPreemptsSuccess(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(70, 71, 70)...)...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(70, 10))

	success, ok := result.(*Success)
	require.True(t, ok, "got %s", result.Outcome())
	assert.Equal(t, 1, success.AttemptIndex)
	assert.Equal(t, 2, exec.Calls(), "no attempts after the first success")
}

func TestSeek_AttemptsNeverExceedMax(t *testing.T) {
	scripts := [][]string{
		{"score: 10"},
		{"nothing"},
		scoreOutputs(10, 30, 50, 70, 90),
		scoreOutputs(20, 80, 20, 80),
	}
	for _, script := range scripts {
		for maxAttempts := 1; maxAttempts <= 6; maxAttempts++ {
			exec := execution.NewScriptedExecutor(validations(script...)...)
			engine, _ := newEngine(exec)
			result := engine.Seek(context.Background(), testConfig(95, maxAttempts))
			assert.LessOrEqual(t, result.History().Len(), maxAttempts)
		}
	}
}

func TestSeek_ScoresAreClamped(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations("score: 250")...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 1))

	success, ok := result.(*Success)
	require.True(t, ok)
	assert.Equal(t, Scored(100), success.Score)
}

func TestSeek_PassesContextToNextAttempt(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(
		`{"score": 40, "gaps": ["tests"]}`,
		"score: 90",
	)...)
	engine, _ := newEngine(exec)
	cfg := testConfig(80, 5)
	cfg.Dir = "/work"
	cfg.Env = map[string]string{"CI": "1"}

	result := engine.Seek(context.Background(), cfg)
	require.Equal(t, OutcomeSuccess, result.Outcome())

	reqs := exec.Requests()
	require.Len(t, reqs, 4)

	first := reqs[0]
	assert.Equal(t, "improve --previous ", first.Command)
	assert.Equal(t, "/work", first.Dir)
	assert.Equal(t, "1", first.Env["CI"])
	assert.Equal(t, "1", first.Env[EnvAttempt])
	assert.NotContains(t, first.Env, EnvScore)

	second := reqs[2]
	assert.Equal(t, "improve --previous 40", second.Command)
	assert.Equal(t, "40", second.Env[EnvScore])
	assert.Equal(t, `["tests"]`, second.Env[EnvGaps])
	assert.Contains(t, second.Env[EnvOutput], `"score": 40`)
	assert.Equal(t, "2", second.Env[EnvAttempt])
	assert.Equal(t, "1", second.Env[EnvContextVersion])

	assert.Equal(t, second.Env, reqs[3].Env, "validation sees the same context")
	assert.NotContains(t, cfg.Env, EnvAttempt, "caller env is not mutated")
}

func TestSeek_ValidatorGapsReachShellAsOneWord(t *testing.T) {
	dir := t.TempDir()
	report := `{"score": 10, "gaps": ["x'; touch pwned; echo '"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.json"), []byte(report), 0o600))

	engine, _ := newEngine(execution.NewShellExecutor())
	result := engine.Seek(context.Background(), Config{
		Goal:        "quoting",
		Action:      "printf '%s\\n' ${validation.gaps} >> actions.log",
		Validator:   "cat report.json",
		Threshold:   80,
		MaxAttempts: 2,
		Dir:         dir,
	})
	require.Equal(t, OutcomeMaxAttemptsReached, result.Outcome())

	assert.NoFileExists(t, filepath.Join(dir, "pwned"))
	log, err := os.ReadFile(filepath.Join(dir, "actions.log"))
	require.NoError(t, err)
	assert.Equal(t, "\n"+`["x'; touch pwned; echo '"]`+"\n", string(log))
}

func TestSeek_FailedActionStillValidated(t *testing.T) {
	exec := execution.NewScriptedExecutor(
		execution.Step{Stderr: "compile error", ExitCode: 2},
		execution.Output("score: 85"),
	)
	engine, logger := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 3))

	require.Equal(t, OutcomeSuccess, result.Outcome())
	a := result.History().Attempts()[0]
	assert.Equal(t, 2, a.ActionExitCode)
	assert.Equal(t, "compile error", a.ActionOutput)
	logger.AssertLogged(t, zapcore.WarnLevel, "action exited non-zero")
}

func TestSeek_ActionLaunchFailureIsFatal(t *testing.T) {
	launchErr := &execution.LaunchError{Command: "missing-tool", Err: errors.New("not found")}
	exec := execution.NewScriptedExecutor(
		execution.Output("refined"),
		execution.Output("score: 10"),
		execution.Step{Err: launchErr},
	)
	engine, logger := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 5))

	failed, ok := result.(*Failed)
	require.True(t, ok, "got %s", result.Outcome())
	assert.ErrorIs(t, failed.Err, execution.ErrLaunch)
	assert.Equal(t, 1, result.History().Len(), "failed attempt is not recorded")
	assert.Equal(t, 3, exec.Calls(), "validation is not attempted")
	logger.AssertLogged(t, zapcore.ErrorLevel, "action could not be launched")
}

func TestSeek_ValidationLaunchFailureIsUnscored(t *testing.T) {
	exec := execution.NewScriptedExecutor(
		execution.Output("ok"),
		execution.Step{Err: &execution.LaunchError{Command: "validate", Err: errors.New("permission denied")}},
		execution.Output("ok"),
		execution.Output("score: 88"),
	)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 5))

	require.Equal(t, OutcomeSuccess, result.Outcome())
	first := result.History().Attempts()[0]
	assert.False(t, first.Scored())
	assert.Contains(t, first.ValidationError, "permission denied")
	assert.Equal(t, -1, first.ValidateExitCode)
}

func TestSeek_SessionTimeoutDuringCommand(t *testing.T) {
	exec := execution.NewScriptedExecutor(
		execution.Output("ok"),
		execution.Output("score: 10"),
		execution.Step{Stdout: "slow", Delay: 10 * time.Second},
	)
	engine, _ := newEngine(exec)
	cfg := testConfig(80, 5)
	cfg.Timeout = 200 * time.Millisecond

	started := time.Now()
	result := engine.Seek(context.Background(), cfg)

	assert.Less(t, time.Since(started), 5*time.Second)
	require.Equal(t, OutcomeTimedOut, result.Outcome())
	require.Equal(t, 1, result.History().Len(), "only completed attempts are kept")
	assert.True(t, result.History().Attempts()[0].Scored())
}

func TestSeek_SessionTimeoutFirstCommand(t *testing.T) {
	exec := execution.NewScriptedExecutor(execution.Step{Delay: 10 * time.Second})
	engine, _ := newEngine(exec)
	cfg := testConfig(80, 5)
	cfg.Timeout = 50 * time.Millisecond

	result := engine.Seek(context.Background(), cfg)

	assert.Equal(t, OutcomeTimedOut, result.Outcome())
	assert.Equal(t, 0, result.History().Len())
}

func TestSeek_PerCommandTimeoutRecordsUnscoredAttempt(t *testing.T) {
	exec := execution.NewScriptedExecutor(
		execution.Step{Stdout: "slow", Delay: 5 * time.Second},
		execution.Output("ok"),
		execution.Output("score: 90"),
	)
	metrics := NewMetrics()
	before := testutil.ToFloat64(metrics.CommandTimeoutsTotal.WithLabelValues(KindAction))
	engine, logger := newEngine(exec, WithCommandTimeout(30*time.Millisecond), WithMetrics(metrics))

	result := engine.Seek(context.Background(), testConfig(80, 5))

	success, ok := result.(*Success)
	require.True(t, ok, "got %s", result.Outcome())
	assert.Equal(t, 2, success.AttemptIndex)

	first := result.History().Attempts()[0]
	assert.True(t, first.TimedOut)
	assert.False(t, first.Scored())
	assert.Empty(t, first.ValidateCommand, "validation skipped after action timeout")
	logger.AssertLogged(t, zapcore.WarnLevel, "action timed out")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CommandTimeoutsTotal.WithLabelValues(KindAction)))
}

func TestSeek_CancelledContextFails(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations("score: 10")...)
	engine, _ := newEngine(exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := engine.Seek(ctx, testConfig(80, 5))

	failed, ok := result.(*Failed)
	require.True(t, ok, "got %s", result.Outcome())
	assert.ErrorIs(t, failed.Err, context.Canceled)
	assert.Equal(t, 0, exec.Calls())
}

func TestSeek_InvalidConfigFails(t *testing.T) {
	exec := execution.NewScriptedExecutor()
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 0))

	failed, ok := result.(*Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed, ErrInvalidConfig)
	assert.Equal(t, 0, exec.Calls())
}

func TestSeek_ZeroThresholdAcceptsUnscored(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations("unparsable")...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(0, 3))

	success, ok := result.(*Success)
	require.True(t, ok)
	assert.False(t, success.Score.IsSet())
}

func TestSeek_MinAttemptInterval(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(10, 20, 30)...)...)
	engine, _ := newEngine(exec, WithMinAttemptInterval(40*time.Millisecond))

	started := time.Now()
	result := engine.Seek(context.Background(), testConfig(95, 3))

	assert.Equal(t, OutcomeMaxAttemptsReached, result.Outcome())
	assert.GreaterOrEqual(t, time.Since(started), 70*time.Millisecond)
}

func TestSeek_PacingUsesWholeSessionBudget(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(10, 20, 30)...)...)
	engine, _ := newEngine(exec, WithMinAttemptInterval(time.Second))
	cfg := testConfig(95, 3)
	cfg.Timeout = 200 * time.Millisecond

	started := time.Now()
	result := engine.Seek(context.Background(), cfg)

	require.Equal(t, OutcomeTimedOut, result.Outcome())
	assert.Equal(t, 1, result.History().Len())
	assert.GreaterOrEqual(t, time.Since(started), 190*time.Millisecond)
	assert.Less(t, time.Since(started), time.Second)
}

func TestSeek_PacingCancelled(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(10, 20, 30)...)...)
	engine, _ := newEngine(exec, WithMinAttemptInterval(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	time.AfterFunc(50*time.Millisecond, cancel)
	result := engine.Seek(ctx, testConfig(95, 3))

	require.Equal(t, OutcomeFailed, result.Outcome())
	assert.ErrorIs(t, result.(*Failed).Err, context.Canceled)
}

func TestSeek_LogsCarryRunFields(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations("score: 90")...)
	engine, logger := newEngine(exec, WithRunIDs(func() string { return "run-1" }))

	result := engine.Seek(context.Background(), testConfig(80, 5))
	require.Equal(t, "run-1", result.RunID())

	logger.AssertLogged(t, zapcore.InfoLevel, "goal-seek started")
	logger.AssertField(t, "attempt completed", "goal.run_id", "run-1")
	logger.AssertField(t, "attempt completed", "goal.attempt", int64(1))
	logger.AssertField(t, "goal-seek finished", "outcome", "success")
	logger.AssertLogged(t, logging.TraceLevel, "attempt output")
	logger.AssertField(t, "attempt output", "validation_output", "score: 90")
}

func TestSeek_Telemetry(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(40, 65, 82)...)...)
	engine, _ := newEngine(exec,
		WithTracerProvider(tel.TracerProvider()),
		WithMeterProvider(tel.MeterProvider()),
	)

	engine.Seek(context.Background(), testConfig(80, 5))

	tel.AssertSpanExists(t, "goalseek.seek")
	tel.AssertSpanAttribute(t, "goalseek.seek", "goalseek.outcome", "success")
	tel.AssertSpanAttribute(t, "goalseek.seek", "goalseek.attempts", int64(3))
	assert.Len(t, tel.SpansByName("goalseek.attempt"), 3)

	seek := tel.SpanByName("goalseek.seek")
	for _, span := range tel.SpansByName("goalseek.attempt") {
		assert.Equal(t, seek.SpanContext().SpanID(), span.Parent().SpanID())
	}

	rm, err := tel.Collect(context.Background())
	require.NoError(t, err)
	var attempts int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "goalseek.attempts" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				attempts += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), attempts)
}

func TestSeek_PrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	seeks := testutil.ToFloat64(metrics.SeeksTotal.WithLabelValues(string(OutcomeConverged)))
	attempts := testutil.ToFloat64(metrics.AttemptsTotal)
	failures := testutil.ToFloat64(metrics.ExtractionFailures)

	exec := execution.NewScriptedExecutor(validations("???", "score: 50", "score: 51", "score: 50")...)
	engine, _ := newEngine(exec, WithMetrics(metrics))
	result := engine.Seek(context.Background(), testConfig(90, 10))

	require.Equal(t, OutcomeConverged, result.Outcome())
	assert.Equal(t, seeks+1, testutil.ToFloat64(metrics.SeeksTotal.WithLabelValues(string(OutcomeConverged))))
	assert.Equal(t, attempts+4, testutil.ToFloat64(metrics.AttemptsTotal))
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.ExtractionFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SeeksInFlight))
}

func TestSeek_ValidationLaunchFailureIsNotAnExtractionFailure(t *testing.T) {
	metrics := NewMetrics()
	failures := testutil.ToFloat64(metrics.ExtractionFailures)

	exec := execution.NewScriptedExecutor(
		execution.Output("ok"),
		execution.Step{Err: &execution.LaunchError{Command: "validate", Err: errors.New("not found")}},
		execution.Output("ok"),
		execution.Output("score: 95"),
	)
	engine, _ := newEngine(exec, WithMetrics(metrics))
	result := engine.Seek(context.Background(), testConfig(80, 5))

	require.Equal(t, OutcomeSuccess, result.Outcome())
	assert.Equal(t, failures, testutil.ToFloat64(metrics.ExtractionFailures))
}

func TestSeek_EventsAndTracker(t *testing.T) {
	var events []Event
	sink := EventSinkFunc(func(_ context.Context, ev Event) error {
		events = append(events, ev)
		return nil
	})
	failing := EventSinkFunc(func(context.Context, Event) error {
		return errors.New("broker down")
	})
	tracker := NewTracker()

	exec := execution.NewScriptedExecutor(validations(scoreOutputs(40, 82)...)...)
	engine, logger := newEngine(exec, WithEventSink(sink), WithEventSink(failing), WithTracker(tracker))

	result := engine.Seek(context.Background(), testConfig(80, 5))
	require.Equal(t, OutcomeSuccess, result.Outcome())

	require.Len(t, events, 4)
	assert.Equal(t, EventSeekStarted, events[0].Type)
	assert.Equal(t, 5, events[0].MaxAttempts)
	assert.Equal(t, EventAttemptCompleted, events[1].Type)
	assert.Equal(t, 1, events[1].Attempt.Index)
	assert.Equal(t, EventAttemptCompleted, events[2].Type)
	assert.Equal(t, EventSeekFinished, events[3].Type)
	assert.Equal(t, OutcomeSuccess, events[3].Outcome)
	require.NotNil(t, events[3].FinalScore)
	assert.Equal(t, Scored(82), *events[3].FinalScore)
	for _, ev := range events {
		assert.Equal(t, result.RunID(), ev.RunID)
	}

	logger.AssertLogged(t, zapcore.WarnLevel, "event publish failed")

	status := tracker.Snapshot()
	assert.Equal(t, string(OutcomeSuccess), status.State)
	assert.Equal(t, 2, status.Attempt)
	assert.Equal(t, []Score{Scored(40), Scored(82)}, status.Scores)
	assert.Equal(t, Scored(82), status.BestScore)
	assert.False(t, tracker.Running())
}

func TestSeek_ResultJSON(t *testing.T) {
	exec := execution.NewScriptedExecutor(validations(scoreOutputs(40, 82)...)...)
	engine, _ := newEngine(exec)

	result := engine.Seek(context.Background(), testConfig(80, 5))

	summary := Summarize(result)
	assert.Equal(t, OutcomeSuccess, summary.Outcome)
	assert.Equal(t, 2, summary.Attempts)
	assert.Equal(t, Scored(82), summary.FinalScore)
	assert.Equal(t, 2, summary.BestAttempt)
	assert.Equal(t, "refined", summary.BestOutput)

	b, err := MarshalResult(result)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"outcome":"success"`)
	assert.Contains(t, string(b), `"final_score":82`)
}
