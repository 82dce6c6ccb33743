package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aisdlc/copilot/internal/api"
	"github.com/aisdlc/copilot/internal/config"
	"github.com/aisdlc/copilot/internal/events"
	"github.com/aisdlc/copilot/internal/history"
	"github.com/aisdlc/copilot/internal/llm"
	"github.com/aisdlc/copilot/internal/parser"
	"github.com/aisdlc/copilot/internal/prompts"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	config.LoadDotEnv()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	router, err := llm.NewRouter(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create LLM router")
	}
	if err := router.HealthCheck(); err != nil {
		log.Warn().Err(err).Msg("no LLM provider available, generation requests will fail")
	}

	cache, err := llm.CreateCache(ctx, cfg.LLM.CacheType, cfg.RedisURL, cfg.LLM.CacheSize, cfg.LLM.CacheTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create LLM cache")
	}
	defer closeCache(cache)

	var gen llm.Generator = router
	if cfg.LLM.CacheType == "memory" || cfg.LLM.CacheType == "redis" {
		gen = llm.NewCachedRouter(router, cache, cfg.LLM.CacheTTL)
		log.Info().Str("type", cfg.LLM.CacheType).Dur("ttl", cfg.LLM.CacheTTL).Msg("LLM response cache enabled")
	}

	personas := prompts.DefaultCatalog()
	if cfg.PersonasFile != "" {
		personas, err = prompts.LoadCatalog(cfg.PersonasFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PersonasFile).Msg("failed to load personas")
		}
	}

	store := openHistory(ctx, cfg)
	defer store.Close()

	publisher := openEvents(ctx, cfg)
	defer publisher.Close()

	// Create server
	srv, err := api.NewServer(cfg, api.Deps{
		LLM:      gen,
		Router:   router,
		Cache:    cache,
		Personas: personas,
		Parser:   parser.NewParser(),
		History:  store,
		Events:   publisher,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	// Generation requests can take minutes
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not gracefully shutdown the server")
		}
		close(done)
	}()

	log.Info().
		Int("port", cfg.Port).
		Str("env", cfg.Env).
		Strs("providers", providerNames(router)).
		Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// openHistory uses Postgres when DATABASE_URL is set and falls back to memory
func openHistory(ctx context.Context, cfg *config.Config) history.Store {
	if cfg.DatabaseURL == "" {
		return history.NewMemoryStore(history.DefaultCapacity)
	}

	store, err := history.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to database, keeping history in memory")
		return history.NewMemoryStore(history.DefaultCapacity)
	}
	log.Info().Msg("connected to database")
	return store
}

// openEvents publishes to NATS when NATS_URL is set
func openEvents(ctx context.Context, cfg *config.Config) events.Publisher {
	if cfg.NATSURL == "" {
		return events.NopPublisher{}
	}

	pub, err := events.NewNATSPublisher(ctx, cfg.NATSURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to NATS, generation events disabled")
		return events.NopPublisher{}
	}
	return pub
}

func closeCache(c llm.Cache) {
	switch c := c.(type) {
	case *llm.MemoryCache:
		c.Close()
	case *llm.RedisCache:
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis cache")
		}
	}
}

func providerNames(r *llm.Router) []string {
	var out []string
	for _, p := range r.Providers() {
		out = append(out, string(p))
	}
	return out
}
