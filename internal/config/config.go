// Package config loads goalseek's application configuration and goal
// definitions.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/goalseek/internal/logging"
	"github.com/fyrsmithlabs/goalseek/internal/telemetry"
)

// Config is the application configuration.
type Config struct {
	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Executor  ExecutorConfig   `koanf:"executor"`
	Engine    EngineConfig     `koanf:"engine"`
	Server    ServerConfig     `koanf:"server"`
	Events    EventsConfig     `koanf:"events"`
}

// ExecutorConfig controls how action and validation commands are run.
type ExecutorConfig struct {
	// Shell interprets every command with "-c".
	Shell string `koanf:"shell"`

	// CommandTimeout bounds each command. Zero means no per-command limit.
	CommandTimeout Duration `koanf:"command_timeout"`

	// Assistant is the binary that "claude:" actions are passed to.
	Assistant string `koanf:"assistant"`

	// KillGrace is how long a cancelled command may take to exit before
	// its output pipes are closed.
	KillGrace Duration `koanf:"kill_grace"`

	// MaxOutputBytes caps captured stdout and stderr per command.
	MaxOutputBytes int `koanf:"max_output_bytes"`
}

// EngineConfig tunes the attempt loop.
type EngineConfig struct {
	// MinAttemptInterval spaces attempt starts. Zero disables pacing.
	MinAttemptInterval Duration `koanf:"min_attempt_interval"`

	// Metrics enables Prometheus metrics.
	Metrics bool `koanf:"metrics"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Addr            string   `koanf:"addr"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// EventsConfig controls NATS event publishing.
type EventsConfig struct {
	Enabled        bool     `koanf:"enabled"`
	NATSURL        string   `koanf:"nats_url"`
	Subject        string   `koanf:"subject"`
	Token          Secret   `koanf:"token"`
	ConnectTimeout Duration `koanf:"connect_timeout"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
		Executor: ExecutorConfig{
			Shell:          "/bin/sh",
			Assistant:      "claude",
			KillGrace:      Duration(2 * time.Second),
			MaxOutputBytes: 4 << 20,
		},
		Engine: EngineConfig{
			Metrics: true,
		},
		Server: ServerConfig{
			Enabled:         false,
			Addr:            "127.0.0.1:9464",
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Events: EventsConfig{
			Enabled:        false,
			NATSURL:        "nats://127.0.0.1:4222",
			Subject:        "goalseek.events",
			ConnectTimeout: Duration(2 * time.Second),
		},
	}
}

// Validate checks every section and joins the errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if strings.TrimSpace(c.Executor.Shell) == "" {
		errs = append(errs, errors.New("executor.shell is required"))
	}
	if strings.TrimSpace(c.Executor.Assistant) == "" {
		errs = append(errs, errors.New("executor.assistant is required"))
	}
	if c.Executor.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("executor.max_output_bytes cannot be negative, got %d", c.Executor.MaxOutputBytes))
	}

	if c.Server.Enabled {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			errs = append(errs, fmt.Errorf("server.addr %q: %w", c.Server.Addr, err))
		}
		if c.Server.ShutdownTimeout <= 0 {
			errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
		}
	}

	if c.Events.Enabled {
		if c.Events.NATSURL == "" {
			errs = append(errs, errors.New("events.nats_url is required when events are enabled"))
		}
		if c.Events.Subject == "" || strings.ContainsAny(c.Events.Subject, " \t*>") {
			errs = append(errs, fmt.Errorf("events.subject %q must be a literal NATS subject", c.Events.Subject))
		}
	}

	return errors.Join(errs...)
}
