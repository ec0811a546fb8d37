// Package events publishes token usage of translation runs to NATS.
//
// Every chunk result becomes one JSON message on the usage subject; a run
// summary is published on "<subject>.run" when the run ends. Publishing is
// best effort: failures are logged and never abort a run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/minios-linux/batchtr/translate"
)

// DefaultSubject is the default usage subject.
const DefaultSubject = "batchtr.usage"

// RunSummary is published once per finished run.
type RunSummary struct {
	RunID    string          `json:"run_id"`
	Language string          `json:"language"`
	Lines    int             `json:"lines"`
	Rounds   int             `json:"rounds"`
	Requests int             `json:"requests"`
	Retried  int             `json:"retried"`
	Usage    translate.Usage `json:"usage"`
	Error    string          `json:"error,omitempty"`
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher implements translate.UsageRecorder on a NATS connection.
type Publisher struct {
	conn    conn
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials the NATS server at url. token may be empty.
func Connect(url, token, subject string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("batchtr"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	p := newPublisher(nc, subject, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: c, subject: subject, logger: logger}
}

// Subject returns the usage subject.
func (p *Publisher) Subject() string {
	return p.subject
}

// RecordUsage publishes ev on the usage subject.
func (p *Publisher) RecordUsage(_ context.Context, ev translate.UsageEvent) {
	p.publish(p.subject, ev)
}

// PublishRun publishes the summary of a finished run.
func (p *Publisher) PublishRun(_ context.Context, s RunSummary) {
	p.publish(p.subject+".run", s)
}

func (p *Publisher) publish(subject string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("marshal usage event", "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publish usage event", "subject", subject, "error", err)
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.FlushTimeout(5 * time.Second); err != nil {
		p.logger.Warn("nats flush", "error", err)
	}
	p.nc.Close()
}
