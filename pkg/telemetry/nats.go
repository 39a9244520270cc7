package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS forwarder.
type NATSConfig struct {
	// URL is the NATS server URL
	URL string

	// Subject is the base subject; events go to <Subject>.<event type>
	Subject string

	ConnectTimeout time.Duration
}

// natsPublisher is the part of *nats.Conn the forwarder uses.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// Forwarder relays hub events onto NATS subjects.
type Forwarder struct {
	conn    natsPublisher
	closer  func()
	subject string
	logger  *zap.Logger
}

// NewNATSForwarder connects to NATS and returns a forwarder.
func NewNATSForwarder(cfg NATSConfig, logger *zap.Logger) (*Forwarder, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("browsercast"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	f := newForwarder(conn, cfg.Subject, logger)
	f.closer = conn.Close
	return f, nil
}

func newForwarder(conn natsPublisher, subject string, logger *zap.Logger) *Forwarder {
	if subject == "" {
		subject = "browsercast.events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{conn: conn, subject: subject, logger: logger}
}

// Run forwards events from the hub until ctx is done or the hub closes.
func (f *Forwarder) Run(ctx context.Context, hub *Hub) error {
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := f.forward(event); err != nil {
				f.logger.Warn("nats publish failed", zap.String("event", string(event.Type)), zap.Error(err))
			}
		}
	}
}

func (f *Forwarder) forward(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.conn.Publish(f.subject+"."+string(event.Type), payload)
}

// Close closes the NATS connection.
func (f *Forwarder) Close() error {
	if f.closer != nil {
		f.closer()
	}
	return nil
}
