package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aisdlc/copilot/internal/history"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned when publishing on a closed publisher
var ErrNotConnected = errors.New("not connected to NATS")

// StreamConfig defines the JetStream stream events are kept in
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxMsgs  int64
	MaxBytes int64
	MaxAge   time.Duration
	Replicas int
}

// DefaultStreamConfig returns the stream configuration for generation events
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAll},
		MaxMsgs:  100000,
		MaxBytes: 1024 * 1024 * 100, // 100MB
		MaxAge:   7 * 24 * time.Hour,
		Replicas: 1,
	}
}

// NATSPublisher publishes records to JetStream
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	owns   bool
	mu     sync.RWMutex
	closed bool
}

// NewNATSPublisher connects to url and makes sure the event stream exists
func NewNATSPublisher(ctx context.Context, url string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("copilot-api"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p, err := newPublisher(ctx, nc, DefaultStreamConfig())
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.owns = true

	log.Info().Str("url", url).Msg("connected to NATS JetStream")
	return p, nil
}

// NewNATSPublisherWithConn uses an existing connection. Close leaves the
// connection open.
func NewNATSPublisherWithConn(ctx context.Context, nc *nats.Conn, cfg StreamConfig) (*NATSPublisher, error) {
	return newPublisher(ctx, nc, cfg)
}

func newPublisher(ctx context.Context, nc *nats.Conn, cfg StreamConfig) (*NATSPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &NATSPublisher{nc: nc, js: js}
	if _, err := p.createStream(ctx, cfg); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *NATSPublisher) createStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:        cfg.Name,
		Subjects:    cfg.Subjects,
		MaxMsgs:     cfg.MaxMsgs,
		MaxBytes:    cfg.MaxBytes,
		MaxAge:      cfg.MaxAge,
		Replicas:    cfg.Replicas,
		Description: "AI SDLC Co-Pilot generation events",
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
	}
	if streamCfg.Replicas == 0 {
		streamCfg.Replicas = 1
	}

	stream, err := p.js.CreateOrUpdateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}

	log.Debug().Str("stream", cfg.Name).Strs("subjects", cfg.Subjects).Msg("stream ready")
	return stream, nil
}

// Publish sends r as JSON on its kind's subject. The record ID doubles as the
// JetStream message ID so retried publishes are deduplicated.
func (p *NATSPublisher) Publish(ctx context.Context, r *history.Record) error {
	p.mu.RLock()
	js, closed := p.js, p.closed
	p.mu.RUnlock()

	if js == nil || closed {
		return ErrNotConnected
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	subject := SubjectFor(r.Kind)
	if _, err := js.Publish(ctx, subject, data, jetstream.WithMsgID(r.ID.String())); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	log.Debug().Str("subject", subject).Str("id", r.ID.String()).Msg("published generation event")
	return nil
}

// IsConnected returns true if connected to NATS
func (p *NATSPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.nc == nil || p.closed {
		return false
	}
	return p.nc.IsConnected()
}

// Close closes the connection when the publisher opened it
func (p *NATSPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	if p.owns && p.nc != nil {
		p.nc.Close()
		log.Info().Msg("NATS connection closed")
	}
}
