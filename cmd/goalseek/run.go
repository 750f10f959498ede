package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goalseek/internal/config"
	"github.com/fyrsmithlabs/goalseek/internal/events"
	"github.com/fyrsmithlabs/goalseek/internal/execution"
	"github.com/fyrsmithlabs/goalseek/internal/goalseek"
	"github.com/fyrsmithlabs/goalseek/internal/logging"
	"github.com/fyrsmithlabs/goalseek/internal/server"
	"github.com/fyrsmithlabs/goalseek/internal/telemetry"
)

type runOptions struct {
	goalPath   string
	configPath string
	json       bool
	metrics    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a goal definition",
		Long: `Run the goal-seek loop described by a goal file.

Examples:
  # Run with the default application config
  goalseek run -f goal.yaml

  # Print the result and full attempt history as JSON
  goalseek run -f goal.toml --json

  # Serve /health, /status and /metrics while running
  goalseek run -f goal.yaml --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGoal(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.goalPath, "file", "f", "", "goal definition (.yaml, .yml or .toml)")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "application config file")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "serve health, status and metrics over HTTP")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runGoal(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return &exitError{code: goalseek.ExitError, err: err}
	}
	if opts.metrics {
		cfg.Server.Enabled = true
	}

	goal, err := config.LoadGoal(opts.goalPath)
	if err != nil {
		return &exitError{code: goalseek.ExitError, err: err}
	}
	seekCfg, err := goal.EngineConfig(cfg.Executor)
	if err != nil {
		return &exitError{code: goalseek.ExitError, err: err}
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return &exitError{code: goalseek.ExitError, err: err}
	}
	defer func() {
		_ = tel.Shutdown(context.WithoutCancel(ctx))
	}()

	// Logs go to stderr; stdout carries the result.
	logger, err := logging.NewLoggerTo(&cfg.Logging, cmd.ErrOrStderr(), tel.LoggerProvider())
	if err != nil {
		return &exitError{code: goalseek.ExitError, err: err}
	}
	defer func() { _ = logger.Sync() }()
	ctx = logging.WithLogger(ctx, logger)

	tracker := goalseek.NewTracker()
	engineOpts := []goalseek.Option{
		goalseek.WithLogger(logger),
		goalseek.WithTracerProvider(tel.TracerProvider()),
		goalseek.WithMeterProvider(tel.MeterProvider()),
		goalseek.WithTracker(tracker),
		goalseek.WithCommandTimeout(cfg.Executor.CommandTimeout.Duration()),
		goalseek.WithMinAttemptInterval(cfg.Engine.MinAttemptInterval.Duration()),
	}
	if cfg.Engine.Metrics {
		engineOpts = append(engineOpts, goalseek.WithMetrics(goalseek.NewMetrics()))
	}

	if cfg.Events.Enabled {
		pub, err := events.Connect(events.Options{
			URL:            cfg.Events.NATSURL,
			Subject:        cfg.Events.Subject,
			Token:          cfg.Events.Token.Value(),
			ConnectTimeout: cfg.Events.ConnectTimeout.Duration(),
			Logger:         logger.Named("events"),
		})
		if err != nil {
			return &exitError{code: goalseek.ExitError, err: err}
		}
		defer func() {
			if err := pub.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Warn(ctx, "closing event publisher", zap.Error(err))
			}
		}()
		engineOpts = append(engineOpts, goalseek.WithEventSink(pub))
	}

	if cfg.Server.Enabled {
		stopServer := startServer(ctx, cfg, tracker, tel, logger)
		defer stopServer()
	}

	exec := execution.NewShellExecutor(
		execution.WithShell(cfg.Executor.Shell),
		execution.WithKillGrace(cfg.Executor.KillGrace.Duration()),
		execution.WithMaxOutput(cfg.Executor.MaxOutputBytes),
		execution.WithLogger(logger.Named("exec")),
	)

	result := goalseek.NewEngine(exec, engineOpts...).Seek(ctx, seekCfg)
	step, evalErr := goalseek.Evaluate(result, seekCfg)

	out := cmd.OutOrStdout()
	if opts.json {
		if err := writeJSON(out, result, step); err != nil {
			return &exitError{code: goalseek.ExitError, err: err}
		}
	} else {
		fmt.Fprintln(out, renderResult(out, seekCfg, result, step))
	}

	if evalErr != nil {
		return &exitError{code: step.ExitCode, err: evalErr}
	}
	if step.ExitCode != goalseek.ExitSuccess {
		return &exitError{code: step.ExitCode}
	}
	return nil
}

// startServer runs the status server until the returned stop func is called.
func startServer(ctx context.Context, cfg *config.Config, tracker *goalseek.Tracker, tel *telemetry.Telemetry, logger *logging.Logger) func() {
	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		ServiceName:     cfg.Telemetry.ServiceName,
	},
		server.WithTracker(tracker),
		server.WithTelemetry(tel),
		server.WithLogger(logger.Named("http")),
	)

	srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(srvCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "status server failed", zap.Error(err))
		}
	}()
	logger.Info(ctx, "status server started", zap.String("addr", cfg.Server.Addr))

	return func() {
		cancel()
		<-done
	}
}

// jsonResult is the --json output.
type jsonResult struct {
	goalseek.Summary
	Step goalseek.StepOutcome `json:"step"`
}

func writeJSON(w io.Writer, r goalseek.Result, step goalseek.StepOutcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonResult{Summary: goalseek.Summarize(r), Step: step})
}
