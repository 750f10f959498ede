package logging

import (
	"errors"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "github.com/fyrsmithlabs/goalseek"

// TraceLevel sits below Debug. Full command and validator output is logged
// at this level.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name. Besides the zap names it accepts
// "trace" and "warning", case-insensitively.
func LevelFromString(level string) (zapcore.Level, error) {
	switch name := strings.ToLower(strings.TrimSpace(level)); name {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(name)); err != nil {
			return zapcore.InfoLevel, err
		}
		return l, nil
	}
}

// newCore builds the output core: the redacted stream written to out, the
// OTel bridge, or both.
func newCore(cfg *Config, out zapcore.WriteSyncer, provider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output.Stdout {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, out, cfg.Level))
	}
	if cfg.Output.OTEL && provider != nil {
		cores = append(cores, otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(provider)))
	}

	switch len(cores) {
	case 0:
		return nil, errors.New("no log output available: stdout is off and no OTel logger provider was given")
	case 1:
		return sample(cores[0], cfg.Sampling), nil
	default:
		return sample(zapcore.NewTee(cores...), cfg.Sampling), nil
	}
}

// sample rate-limits entries below Error. Errors always pass.
func sample(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	errorsOnly := gate{Core: core, allow: func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }}
	belowError := gate{Core: core, allow: func(l zapcore.Level) bool { return l < zapcore.ErrorLevel }}

	return zapcore.NewTee(
		errorsOnly,
		zapcore.NewSamplerWithOptions(belowError, cfg.Tick, cfg.Initial, cfg.Thereafter),
	)
}

// gate admits only the levels allow accepts.
type gate struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (g gate) Enabled(l zapcore.Level) bool {
	return g.allow(l) && g.Core.Enabled(l)
}

func (g gate) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !g.allow(e.Level) {
		return ce
	}
	return g.Core.Check(e, ce)
}

func (g gate) With(fields []zapcore.Field) zapcore.Core {
	return gate{Core: g.Core.With(fields), allow: g.allow}
}
