package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Application identity reported by the status endpoints
const (
	AppName    = "AI SDLC Co-Pilot"
	AppVersion = "0.1.0"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        int
	Env         string
	Debug       bool
	CORSOrigins []string

	// Directory generated files must stay inside (empty = unrestricted)
	OutputRoot string

	// Optional YAML file with extra or overriding personas
	PersonasFile string

	// Database (empty = in-memory history)
	DatabaseURL string

	// Redis
	RedisURL string

	// NATS (empty = events disabled)
	NATSURL string

	// LLM
	LLM LLMConfig

	// GitHub
	GitHubToken string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	// Primary provider: groq or gemini. The other one is the fallback.
	PrimaryProvider string

	// Groq settings
	GroqKey     string
	GroqModel   string
	GroqBaseURL string

	// Gemini settings
	GeminiKey     string
	GeminiModel   string
	GeminiBaseURL string

	// Per-call timeout
	Timeout time.Duration

	// Response cache: none, memory, redis
	CacheType string
	CacheTTL  time.Duration
	CacheSize int
}

// LoadDotEnv loads the first .env file found among paths. Missing files are not an error.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("failed to load env file")
			continue
		}
		log.Debug().Str("path", p).Msg("loaded env file")
		return
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnvInt("PORT", 8000),
		Env:          getEnv("ENVIRONMENT", "development"),
		Debug:        getEnvBool("DEBUG", false),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		OutputRoot:   getEnv("OUTPUT_ROOT", ""),
		PersonasFile: getEnv("PERSONAS_FILE", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		NATSURL:      getEnv("NATS_URL", ""),
		GitHubToken:  getEnv("GITHUB_TOKEN", ""),

		LLM: LLMConfig{
			PrimaryProvider: strings.ToLower(getEnv("LLM_PRIMARY_PROVIDER", "groq")),
			GroqKey:         getEnv("GROQ_API_KEY", ""),
			GroqModel:       getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
			GroqBaseURL:     getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			GeminiKey:       getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			GeminiBaseURL:   getEnv("GEMINI_BASE_URL", ""),
			Timeout:         getEnvDuration("LLM_TIMEOUT", 2*time.Minute),
			CacheType:       strings.ToLower(getEnv("LLM_CACHE", "none")),
			CacheTTL:        getEnvDuration("LLM_CACHE_TTL", 24*time.Hour),
			CacheSize:       getEnvInt("LLM_CACHE_SIZE", 1000),
		},
	}

	return cfg, nil
}

// Validate checks if the configuration is coherent
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	switch c.LLM.PrimaryProvider {
	case "groq", "gemini":
	default:
		return fmt.Errorf("LLM_PRIMARY_PROVIDER must be groq or gemini, got %q", c.LLM.PrimaryProvider)
	}

	switch c.LLM.CacheType {
	case "none", "", "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL required when LLM_CACHE=redis")
		}
	default:
		return fmt.Errorf("LLM_CACHE must be none, memory or redis, got %q", c.LLM.CacheType)
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool only treats the literal "true" (any case) as true
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true"
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
