package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newJSONLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Level = TraceLevel
	if mutate != nil {
		mutate(cfg)
	}
	var buf bytes.Buffer
	logger, err := NewLoggerTo(cfg, &buf, nil)
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLogger_WritesJSONWithConstantFields(t *testing.T) {
	logger, buf := newJSONLogger(t, nil)

	logger.Info(context.Background(), "seek started", zap.Float64("threshold", 80))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "seek started", lines[0]["msg"])
	assert.Equal(t, "goalseek", lines[0]["service"])
	assert.Equal(t, 80.0, lines[0]["threshold"])
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithAttempt(WithRun(context.Background(), "run-1", "goal"), 2)

	tests := []struct {
		name  string
		log   func()
		level zapcore.Level
		msg   string
	}{
		{"trace", func() { tl.Trace(ctx, "trace message") }, TraceLevel, "trace message"},
		{"debug", func() { tl.Debug(ctx, "debug message") }, zapcore.DebugLevel, "debug message"},
		{"info", func() { tl.Info(ctx, "info message") }, zapcore.InfoLevel, "info message"},
		{"warn", func() { tl.Warn(ctx, "warn message") }, zapcore.WarnLevel, "warn message"},
		{"error", func() { tl.Error(ctx, "error message") }, zapcore.ErrorLevel, "error message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl.Reset()
			tt.log()
			tl.AssertLogged(t, tt.level, tt.msg)
			tl.AssertField(t, tt.msg, "goal.run_id", "run-1")
			tl.AssertField(t, tt.msg, "goal.attempt", int64(2))
		})
	}
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()

	child := tl.With(zap.String("component", "engine")).Named("goalseek")
	child.Info(context.Background(), "hello")

	entries := tl.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "goalseek", entries[0].LoggerName)
	assert.Equal(t, "engine", entries[0].ContextMap()["component"])
}

func TestLogger_Enabled(t *testing.T) {
	logger, _ := newJSONLogger(t, func(c *Config) { c.Level = zapcore.WarnLevel })

	assert.False(t, logger.Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Enabled(zapcore.ErrorLevel))
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Info(context.Background(), "discarded")
	assert.NoError(t, logger.Sync())
}

func TestIsStdoutSyncError(t *testing.T) {
	assert.True(t, isStdoutSyncError(syscall.EINVAL))
	assert.True(t, isStdoutSyncError(syscall.ENOTTY))
	assert.False(t, isStdoutSyncError(errors.New("disk full")))
}

func TestLogger_CallerIsCallSite(t *testing.T) {
	logger, buf := newJSONLogger(t, func(c *Config) { c.Caller.Enabled = true })

	logger.Warn(context.Background(), "here")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0]["caller"], "logger_test.go")
}

func TestLogger_DisabledLevelSkipsEntry(t *testing.T) {
	logger, buf := newJSONLogger(t, func(c *Config) { c.Level = zapcore.InfoLevel })

	logger.Trace(context.Background(), "attempt output", zap.String("output", "x"))
	logger.Debug(context.Background(), "running command")

	assert.Empty(t, buf.String())
}
