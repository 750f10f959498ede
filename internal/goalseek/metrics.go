package goalseek

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/fyrsmithlabs/goalseek/internal/goalseek"

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the goal-seek engine.
type Metrics struct {
	SeeksTotal           *prometheus.CounterVec
	AttemptsTotal        prometheus.Counter
	AttemptScore         prometheus.Histogram
	CommandDuration      *prometheus.HistogramVec
	CommandTimeoutsTotal *prometheus.CounterVec
	ExtractionFailures   prometheus.Counter
	SeeksInFlight        prometheus.Gauge
}

// NewMetrics returns the process-wide engine metrics, registering them on
// first use.
//
// Metrics:
//   - goalseek_seeks_total{outcome} - Count of finished seeks by outcome
//   - goalseek_attempts_total - Count of completed attempts
//   - goalseek_attempt_score - Histogram of extracted scores
//   - goalseek_command_duration_seconds{kind} - Command run time ("action" or "validate")
//   - goalseek_command_timeouts_total{kind} - Commands stopped by their per-command timeout
//   - goalseek_extraction_failures_total - Validation outputs that could not be scored
//   - goalseek_seeks_in_flight - Seeks currently running
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SeeksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "goalseek_seeks_total",
					Help: "Total number of goal-seek runs by terminal outcome",
				},
				[]string{"outcome"},
			),

			AttemptsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "goalseek_attempts_total",
					Help: "Total number of completed attempts",
				},
			),

			AttemptScore: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "goalseek_attempt_score",
					Help:    "Distribution of extracted attempt scores",
					Buckets: prometheus.LinearBuckets(10, 10, 10), // 10..100
				},
			),

			CommandDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "goalseek_command_duration_seconds",
					Help:    "Duration of action and validation commands in seconds",
					Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
				},
				[]string{"kind"},
			),

			CommandTimeoutsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "goalseek_command_timeouts_total",
					Help: "Total number of commands stopped by their per-command timeout",
				},
				[]string{"kind"},
			),

			ExtractionFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "goalseek_extraction_failures_total",
					Help: "Total number of validation outputs that could not be scored",
				},
			),

			SeeksInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "goalseek_seeks_in_flight",
					Help: "Number of goal-seek runs currently in progress",
				},
			),
		}
	})
	return globalMetrics
}

// otelInstruments mirrors the core counters onto an OTel meter so they reach
// the OTLP collector alongside traces.
type otelInstruments struct {
	seeks    metric.Int64Counter
	attempts metric.Int64Counter
	score    metric.Float64Histogram
	duration metric.Float64Histogram
}

func newOtelInstruments(mp metric.MeterProvider) *otelInstruments {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	inst := &otelInstruments{}
	var err error
	if inst.seeks, err = meter.Int64Counter(
		"goalseek.seeks",
		metric.WithDescription("Finished goal-seek runs"),
		metric.WithUnit("{seek}"),
	); err != nil {
		inst.seeks, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("goalseek.seeks")
	}
	if inst.attempts, err = meter.Int64Counter(
		"goalseek.attempts",
		metric.WithDescription("Completed attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		inst.attempts, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("goalseek.attempts")
	}
	if inst.score, err = meter.Float64Histogram(
		"goalseek.attempt.score",
		metric.WithDescription("Extracted attempt scores"),
	); err != nil {
		inst.score, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("goalseek.attempt.score")
	}
	if inst.duration, err = meter.Float64Histogram(
		"goalseek.seek.duration",
		metric.WithDescription("Duration of goal-seek runs"),
		metric.WithUnit("s"),
	); err != nil {
		inst.duration, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("goalseek.seek.duration")
	}
	return inst
}

// recorder fans engine observations out to Prometheus and OTel.
type recorder struct {
	prom *Metrics
	otel *otelInstruments
}

func (r *recorder) seekStarted() {
	if r.prom != nil {
		r.prom.SeeksInFlight.Inc()
	}
}

func (r *recorder) seekFinished(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	if r.prom != nil {
		r.prom.SeeksInFlight.Dec()
		r.prom.SeeksTotal.WithLabelValues(string(outcome)).Inc()
	}
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	r.otel.seeks.Add(ctx, 1, attrs)
	r.otel.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (r *recorder) command(kind string, elapsed time.Duration, timedOut bool) {
	if r.prom == nil {
		return
	}
	r.prom.CommandDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if timedOut {
		r.prom.CommandTimeoutsTotal.WithLabelValues(kind).Inc()
	}
}

func (r *recorder) attempt(ctx context.Context, a Attempt) {
	if r.prom != nil {
		r.prom.AttemptsTotal.Inc()
	}
	r.otel.attempts.Add(ctx, 1)

	if v, ok := a.Score.Value(); ok {
		if r.prom != nil {
			r.prom.AttemptScore.Observe(v)
		}
		r.otel.score.Record(ctx, v)
	} else if r.prom != nil && !a.TimedOut && a.ValidationError == "" {
		r.prom.ExtractionFailures.Inc()
	}
}
