// Command worker archives generation events from NATS JetStream into the
// Postgres history table.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aisdlc/copilot/internal/config"
	"github.com/aisdlc/copilot/internal/events"
	"github.com/aisdlc/copilot/internal/history"
)

func main() {
	config.LoadDotEnv()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if !cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if cfg.NATSURL == "" || cfg.DatabaseURL == "" {
		log.Fatal().Msg("NATS_URL and DATABASE_URL are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := history.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	cfgConsumer := events.DefaultConsumerConfig()
	if name := os.Getenv("WORKER_CONSUMER"); name != "" {
		cfgConsumer.Name = name
	}

	consumer, err := events.NewConsumer(ctx, cfg.NATSURL, cfgConsumer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create consumer")
	}
	defer consumer.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("worker is shutting down...")
		cancel()
	}()

	log.Info().Str("consumer", cfgConsumer.Name).Msg("starting history archiver")
	err = consumer.Run(ctx, func(ctx context.Context, r *history.Record) error {
		if err := store.Save(ctx, r); err != nil {
			return err
		}
		log.Debug().Str("id", r.ID.String()).Str("kind", string(r.Kind)).Msg("archived generation")
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("consumer error")
	}

	log.Info().Msg("worker stopped")
}
