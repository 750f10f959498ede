// Package events publishes goal-seek lifecycle events to NATS.
//
// Events are JSON-encoded goalseek.Event values published to:
//   - {subject}.{run_id}.seek.started
//   - {subject}.{run_id}.attempt.completed
//   - {subject}.{run_id}.seek.finished
//
// Trace context is propagated in the message headers so consumers can join
// the goalseek.seek trace.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goalseek/internal/goalseek"
	"github.com/fyrsmithlabs/goalseek/internal/logging"
)

// Header names set on every message.
const (
	HeaderEventType = "Goalseek-Event"
	HeaderRunID     = "Goalseek-Run-Id"
)

// ErrClosed is returned when publishing through a closed Publisher.
var ErrClosed = errors.New("events: publisher closed")

// Options configures Connect.
type Options struct {
	URL            string
	Subject        string
	Token          string
	ConnectTimeout time.Duration
	Logger         *logging.Logger
}

// Publisher implements goalseek.EventSink over a NATS connection.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *logging.Logger
	owned   bool
}

// New wraps an existing connection. Close does not close nc.
func New(nc *nats.Conn, subject string, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{nc: nc, subject: strings.TrimSuffix(subject, "."), logger: logger}
}

// Connect dials NATS and returns a Publisher that owns the connection.
func Connect(opts Options) (*Publisher, error) {
	if opts.URL == "" {
		return nil, errors.New("events: nats url is required")
	}
	if opts.Subject == "" {
		return nil, errors.New("events: subject is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	natsOpts := []nats.Option{
		nats.Name("goalseek"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", nc.ConnectedUrlRedacted()))
		}),
	}
	if opts.ConnectTimeout > 0 {
		natsOpts = append(natsOpts, nats.Timeout(opts.ConnectTimeout))
	}
	if opts.Token != "" {
		natsOpts = append(natsOpts, nats.Token(opts.Token))
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("events: connecting to nats: %w", err)
	}

	p := New(nc, opts.Subject, logger)
	p.owned = true
	return p, nil
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(ev goalseek.Event) string {
	return p.subject + "." + ev.RunID + "." + string(ev.Type)
}

// Publish implements goalseek.EventSink.
func (p *Publisher) Publish(ctx context.Context, ev goalseek.Event) error {
	if p.nc == nil || p.nc.IsClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encoding %s: %w", ev.Type, err)
	}

	msg := nats.NewMsg(p.Subject(ev))
	msg.Data = data
	msg.Header.Set(HeaderEventType, string(ev.Type))
	msg.Header.Set(HeaderRunID, ev.RunID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: publishing %s: %w", ev.Type, err)
	}

	p.logger.Debug(ctx, "event published",
		zap.String("subject", msg.Subject),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Close flushes pending messages and closes the connection if the
// Publisher opened it.
func (p *Publisher) Close(ctx context.Context) error {
	if p.nc == nil || p.nc.IsClosed() {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}
	err := p.nc.FlushWithContext(ctx)
	if p.owned {
		p.nc.Close()
	}
	if err != nil {
		return fmt.Errorf("events: flushing: %w", err)
	}
	return nil
}
