package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/aisdlc/copilot/internal/config"
	"github.com/rs/zerolog/log"
)

// Router sends each request to the primary provider and, if that fails for any
// reason, once to the secondary. There are no retries beyond that.
type Router struct {
	clients map[Provider]Client
	order   []Provider // primary first
	usage   *UsageTracker
}

// NewRouter creates a router from application config. A router without any
// configured provider is valid; Generate then returns ErrNoProviders.
func NewRouter(cfg *config.Config) (*Router, error) {
	var clients []Client

	if cfg.LLM.GroqKey != "" {
		clients = append(clients, NewGroqClient(GroqConfig{
			APIKey:  cfg.LLM.GroqKey,
			Model:   cfg.LLM.GroqModel,
			BaseURL: cfg.LLM.GroqBaseURL,
			Timeout: cfg.LLM.Timeout,
		}))
		log.Info().Str("model", cfg.LLM.GroqModel).Msg("groq configured")
	} else {
		log.Warn().Msg("GROQ_API_KEY not set")
	}

	if cfg.LLM.GeminiKey != "" {
		gemini, err := NewGeminiClient(context.Background(), GeminiConfig{
			APIKey:  cfg.LLM.GeminiKey,
			Model:   cfg.LLM.GeminiModel,
			BaseURL: cfg.LLM.GeminiBaseURL,
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		clients = append(clients, gemini)
		log.Info().Str("model", cfg.LLM.GeminiModel).Msg("gemini configured")
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set (no fallback)")
	}

	return NewRouterWithClients(Provider(cfg.LLM.PrimaryProvider), clients...), nil
}

// NewRouterWithClients builds a router over explicit clients. The primary
// provider goes first; the rest keep their given order.
func NewRouterWithClients(primary Provider, clients ...Client) *Router {
	r := &Router{
		clients: make(map[Provider]Client, len(clients)),
		usage:   NewUsageTracker(),
	}

	for _, c := range clients {
		if c == nil {
			continue
		}
		if _, dup := r.clients[c.Name()]; dup {
			continue
		}
		r.clients[c.Name()] = c
		if c.Name() == primary {
			r.order = append([]Provider{c.Name()}, r.order...)
		} else {
			r.order = append(r.order, c.Name())
		}
	}

	return r
}

// Generate runs a completion against the primary provider, falling back to the
// secondary once.
func (r *Router) Generate(ctx context.Context, req *Request) (*Response, error) {
	if len(r.order) == 0 {
		return nil, ErrNoProviders
	}

	normalized := *req
	if normalized.MaxTokens <= 0 {
		normalized.MaxTokens = DefaultMaxTokens
	}
	if normalized.Temperature < 0 {
		normalized.Temperature = DefaultTemperature
	}

	var lastErr error
	for i, provider := range r.order {
		if i > 0 {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Info().Str("provider", string(provider)).Msg("falling back to secondary provider")
		}

		client := r.clients[provider]
		log.Debug().
			Str("provider", string(provider)).
			Int("max_tokens", normalized.MaxTokens).
			Float64("temperature", normalized.Temperature).
			Msg("routing request to provider")

		start := time.Now()
		resp, err := client.Complete(ctx, &normalized)
		if err != nil {
			log.Error().Err(err).Str("provider", string(provider)).Msg("provider request failed")
			r.usage.RecordFailure(provider)
			lastErr = err
			continue
		}

		r.usage.Record(resp, time.Since(start))
		return resp, nil
	}

	if len(r.order) == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// Providers returns configured providers in the order they are tried
func (r *Router) Providers() []Provider {
	out := make([]Provider, len(r.order))
	copy(out, r.order)
	return out
}

// Primary returns the provider tried first, or "" when none is configured
func (r *Router) Primary() Provider {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// Usage returns the router's usage tracker
func (r *Router) Usage() *UsageTracker {
	return r.usage
}

// HealthCheck verifies at least one provider is available
func (r *Router) HealthCheck() error {
	for _, provider := range r.order {
		if r.clients[provider].Available() {
			log.Debug().Str("provider", string(provider)).Msg("provider available")
			return nil
		}
	}
	return ErrNoProviders
}
