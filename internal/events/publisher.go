// Package events forwards domain events (message.created,
// notification.created, notification.read) to NATS for external consumers.
// Nothing in the fan-out path depends on a publish succeeding.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"candidnotes/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	SubjectMessageCreated      = "message.created"
	SubjectNotificationCreated = "notification.created"
	SubjectNotificationRead    = "notification.read"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSPublisher struct {
	conn    Conn
	prefix  string
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Entry
}

func NewNATSPublisher(conn Conn, cfg config.NATSConfig, logger *logrus.Logger) *NATSPublisher {
	log := logger.WithField("component", "events")
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nats-publisher",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infof("circuit breaker %s changed from %s to %s", name, from.String(), to.String())
		},
	})

	return &NATSPublisher{
		conn:    conn,
		prefix:  cfg.SubjectPrefix,
		breaker: breaker,
		log:     log,
	}
}

// Connect dials NATS with reconnects enabled.
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("candidnotes"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect NATS: %w", err)
	}
	return nc, nil
}

func (p *NATSPublisher) Subject(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", subject, err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.conn.Publish(p.Subject(subject), data)
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Noop is used when NATS_URL is not configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, subject string, payload interface{}) error { return nil }
func (Noop) Close() error                                                           { return nil }
