package goalseek

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/goalseek/internal/execution"
)

func seekWith(t *testing.T, cfg Config, steps ...execution.Step) Result {
	t.Helper()
	engine, _ := newEngine(execution.NewScriptedExecutor(steps...))
	return engine.Seek(context.Background(), cfg)
}

func TestEvaluate_Success(t *testing.T) {
	cfg := testConfig(80, 5)
	out, err := Evaluate(seekWith(t, cfg, validations("score: 90")...), cfg)

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, ExitSuccess, out.ExitCode)
	assert.Contains(t, out.Message, "achieved at attempt 1")
}

func TestEvaluate_Incomplete(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		steps   []execution.Step
		outcome Outcome
	}{
		{
			name:    "max attempts",
			cfg:     testConfig(80, 2),
			steps:   validations(scoreOutputs(10, 20)...),
			outcome: OutcomeMaxAttemptsReached,
		},
		{
			name:    "converged",
			cfg:     testConfig(90, 10),
			steps:   validations(scoreOutputs(50, 51, 50)...),
			outcome: OutcomeConverged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := seekWith(t, tt.cfg, tt.steps...)

			out, err := Evaluate(result, tt.cfg)
			require.NoError(t, err)
			assert.False(t, out.Success)
			assert.Equal(t, ExitIncomplete, out.ExitCode)
			assert.Equal(t, tt.outcome, out.Outcome)

			strict := tt.cfg
			strict.FailOnIncomplete = true
			out, err = Evaluate(result, strict)
			require.Error(t, err)
			assert.True(t, IsIncomplete(err))
			var incomplete *IncompleteError
			require.ErrorAs(t, err, &incomplete)
			assert.Equal(t, tt.outcome, incomplete.Outcome)
			assert.Equal(t, ExitIncomplete, out.ExitCode)
		})
	}
}

func TestEvaluate_TimedOutHonoursFailOnIncomplete(t *testing.T) {
	result := &TimedOut{}

	out, err := Evaluate(result, testConfig(80, 5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, out.Outcome)
	assert.Contains(t, out.Message, "timed out")

	cfg := testConfig(80, 5)
	cfg.FailOnIncomplete = true
	_, err = Evaluate(result, cfg)
	assert.ErrorIs(t, err, ErrGoalIncomplete)
}

func TestEvaluate_FailedIsAlwaysError(t *testing.T) {
	launch := &execution.LaunchError{Command: "x", Err: errors.New("nope")}
	result := &Failed{Err: launch}

	out, err := Evaluate(result, testConfig(80, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGoalFailed)
	assert.ErrorIs(t, err, execution.ErrLaunch)
	assert.Equal(t, ExitError, out.ExitCode)
}
