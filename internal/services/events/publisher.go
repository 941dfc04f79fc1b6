// Package events publishes reboot phase transitions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher defines the interface for phase event publishing.
type Publisher interface {
	Publish(ctx context.Context, event models.PhaseEvent) error
	Close()
}

// flushTimeout bounds how long Close waits for the server to acknowledge
// buffered events.
const flushTimeout = 5 * time.Second

// Conn wraps the NATS connection for mocking.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, models.PhaseEvent) error { return nil }

// Close implements Publisher.
func (Nop) Close() {}

// NATSPublisher publishes events as JSON to <subject>.<phase>.
type NATSPublisher struct {
	conn    Conn
	subject string
	logger  zerolog.Logger
}

// Connect dials the configured NATS server.
func Connect(logger zerolog.Logger, cfg models.EventsConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("vserverctl"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return NewWithConn(logger, nc, cfg.Subject), nil
}

// NewWithConn creates a publisher on an existing connection (for testing).
func NewWithConn(logger zerolog.Logger, conn Conn, subject string) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: strings.TrimSuffix(subject, "."),
		logger:  logger,
	}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event models.PhaseEvent) string {
	return p.subject + "." + string(event.Phase)
}

// Publish sends one event.
func (p *NATSPublisher) Publish(ctx context.Context, event models.PhaseEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	subject := p.Subject(event)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	p.logger.Debug().Str("subject", subject).Msg("event published")
	return nil
}

// Close waits until the server has received every buffered event, then
// closes the connection. The publisher never subscribes, so there is nothing
// to drain.
func (p *NATSPublisher) Close() {
	if err := p.conn.FlushTimeout(flushTimeout); err != nil {
		p.logger.Warn().Err(err).Msg("nats flush failed, trailing events may be lost")
	}
	p.conn.Close()
}
