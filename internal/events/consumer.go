package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aisdlc/copilot/internal/history"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// DefaultConsumerName is the durable consumer used by the archiver
const DefaultConsumerName = "copilot-archiver"

// Handler processes one decoded generation record
type Handler func(ctx context.Context, r *history.Record) error

// ConsumerConfig configures a durable consumer on the event stream
type ConsumerConfig struct {
	Stream        string
	Name          string
	FilterSubject string
	AckWait       time.Duration
	MaxDeliver    int
	BatchSize     int
	PollPeriod    time.Duration
}

// DefaultConsumerConfig returns the archiver consumer settings
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Stream:        StreamName,
		Name:          DefaultConsumerName,
		FilterSubject: SubjectAll,
		AckWait:       time.Minute,
		MaxDeliver:    5,
		BatchSize:     10,
		PollPeriod:    5 * time.Second,
	}
}

// Consumer pulls generation records from JetStream
type Consumer struct {
	cfg      ConsumerConfig
	nc       *nats.Conn
	owns     bool
	consumer jetstream.Consumer
}

// NewConsumer connects to url, ensures the stream exists and binds the
// durable consumer
func NewConsumer(ctx context.Context, url string, cfg ConsumerConfig) (*Consumer, error) {
	nc, err := nats.Connect(url, nats.Name("copilot-worker"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	c, err := NewConsumerWithConn(ctx, nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	c.owns = true
	return c, nil
}

// NewConsumerWithConn binds the consumer over an existing connection. Close
// leaves the connection open.
func NewConsumerWithConn(ctx context.Context, nc *nats.Conn, cfg ConsumerConfig) (*Consumer, error) {
	def := DefaultConsumerConfig()
	if cfg.Stream == "" {
		cfg.Stream = def.Stream
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FilterSubject == "" {
		cfg.FilterSubject = def.FilterSubject
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = def.AckWait
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = def.MaxDeliver
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = def.PollPeriod
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamCfg := DefaultStreamConfig()
	streamCfg.Name = cfg.Stream
	pub := &NATSPublisher{nc: nc, js: js}
	if _, err := pub.createStream(ctx, streamCfg); err != nil {
		return nil, err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: 100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", cfg.Name, err)
	}

	log.Debug().
		Str("stream", cfg.Stream).
		Str("consumer", cfg.Name).
		Str("filter", cfg.FilterSubject).
		Msg("consumer ready")

	return &Consumer{cfg: cfg, nc: nc, consumer: consumer}, nil
}

// Run fetches batches and hands each record to handler until ctx ends
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	log.Info().Str("consumer", c.cfg.Name).Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("consumer", c.cfg.Name).Msg("consumer stopped")
			return nil
		default:
		}

		if err := c.fetch(ctx, handler); err != nil {
			log.Error().Err(err).Msg("fetch failed")
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.PollPeriod):
			}
		}
	}
}

func (c *Consumer) fetch(ctx context.Context, handler Handler) error {
	msgs, err := c.consumer.Fetch(c.cfg.BatchSize, jetstream.FetchMaxWait(c.cfg.PollPeriod))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to fetch from NATS: %w", err)
	}

	for msg := range msgs.Messages() {
		handleMessage(ctx, msg, handler)
	}

	if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
		return err
	}
	return nil
}

// handleMessage acks processed records, terminates undecodable ones and
// naks handler failures for redelivery
func handleMessage(ctx context.Context, msg jetstream.Msg, handler Handler) {
	var r history.Record
	if err := json.Unmarshal(msg.Data(), &r); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode generation event")
		if err := msg.Term(); err != nil {
			log.Warn().Err(err).Msg("failed to terminate message")
		}
		return
	}

	if err := handler(ctx, &r); err != nil {
		log.Error().Err(err).Str("id", r.ID.String()).Msg("failed to handle generation event")
		if err := msg.Nak(); err != nil {
			log.Warn().Err(err).Msg("failed to nak message")
		}
		return
	}

	if err := msg.Ack(); err != nil {
		log.Warn().Err(err).Str("id", r.ID.String()).Msg("failed to ack message")
	}
}

// Close closes the connection when the consumer opened it
func (c *Consumer) Close() {
	if c.owns && c.nc != nil {
		c.nc.Close()
	}
}
