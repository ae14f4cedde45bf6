package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the JetStream publisher.
type NATSConfig struct {
	URL           string `yaml:"url" env:"PAGEFORGE_NATS_URL"`
	Stream        string `yaml:"stream" env:"PAGEFORGE_NATS_STREAM"`
	SubjectPrefix string `yaml:"subject_prefix" env:"PAGEFORGE_NATS_SUBJECT_PREFIX"`
	MaxReconnects int    `yaml:"max_reconnects" env:"PAGEFORGE_NATS_MAX_RECONNECTS"`
}

func (c *NATSConfig) withDefaults() NATSConfig {
	out := *c
	if out.Stream == "" {
		out.Stream = "PAGEFORGE"
	}
	if out.SubjectPrefix == "" {
		out.SubjectPrefix = "pageforge"
	}
	if out.MaxReconnects == 0 {
		out.MaxReconnects = 10
	}
	return out
}

// NATS publishes events to a JetStream stream, one subject per event type.
type NATS struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	prefix string
}

// NewNATS connects to NATS and ensures the stream exists.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL,
		nats.Name("pageforge"),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("JetStream: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("JetStream AddStream: %w", err)
	}

	return &NATS{nc: nc, js: js, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event type is published on.
func Subject(prefix string, t Type) string {
	return prefix + "." + string(t)
}

// Publish sends ev to JetStream.
func (n *NATS) Publish(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: Subject(n.prefix, ev.Type),
		Data:    data,
		Header:  nats.Header{},
	}
	if ev.TaskID != "" {
		msg.Header.Set("Task-Id", ev.TaskID)
	}

	ack, err := n.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	slog.Debug("event published",
		slog.String("type", string(ev.Type)),
		slog.String("task_id", ev.TaskID),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)
	return nil
}

// Close drains the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
