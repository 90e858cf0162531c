// Package natssink publishes audit events to NATS subjects.
//
// Each event is JSON-encoded and published on "<prefix>.<event_type>", so consumers
// can subscribe to "<prefix>.>" or to a single event type. Publishing is fire-and-forget
// from the dispatcher goroutine; failures are logged and counted, never returned.
package natssink

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "authcore.audit"

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Sink implements the audit sink interface on top of a NATS publisher.
type Sink struct {
	pub    Publisher
	prefix string
	logger zerolog.Logger
	failed atomic.Uint64
	conn   *nats.Conn
}

// New wraps an existing publisher. An empty prefix uses [DefaultSubjectPrefix].
func New(pub Publisher, prefix string, logger zerolog.Logger) *Sink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Sink{pub: pub, prefix: prefix, logger: logger}
}

// Connect dials url and returns a sink owning the connection.
func Connect(url, prefix string, logger zerolog.Logger, opts ...nats.Option) (*Sink, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	s := New(nc, prefix, logger)
	s.conn = nc
	return s, nil
}

// Subject returns the subject used for eventType.
func (s *Sink) Subject(eventType string) string {
	if eventType == "" {
		eventType = "unknown"
	}
	return s.prefix + "." + eventType
}

// Emit publishes event.
func (s *Sink) Emit(_ context.Context, event audit.Event) {
	if s == nil || s.pub == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.fail(event, err)
		return
	}
	if err := s.pub.Publish(s.Subject(event.EventType), data); err != nil {
		s.fail(event, err)
	}
}

// Failed reports how many events could not be published.
func (s *Sink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

// Close drains the connection if the sink owns one.
func (s *Sink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}

func (s *Sink) fail(event audit.Event, err error) {
	s.failed.Add(1)
	if errors.Is(err, nats.ErrConnectionClosed) {
		s.logger.Debug().Str("event", event.EventType).Msg("audit publish skipped, connection closed")
		return
	}
	s.logger.Warn().
		Err(err).
		Str("event", event.EventType).
		Str("audit_id", event.ID).
		Msg("audit publish failed")
}
