package llm

import (
	"context"
	"errors"
)

// Provider represents an LLM provider
type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderGemini Provider = "gemini"
)

// Generation defaults used when a caller leaves a field zero
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.7
)

// ErrNoProviders is returned when neither provider has credentials
var ErrNoProviders = errors.New("no LLM configured. Set GROQ_API_KEY or GEMINI_API_KEY")

// Request represents an LLM completion request
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response represents an LLM completion response
type Response struct {
	Content      string
	Model        string
	Provider     Provider
	InputTokens  int
	OutputTokens int
	FinishReason string
	Cached       bool // True if response was served from cache
}

// Client is the interface for LLM providers
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Name() Provider
	Available() bool
}

// Generator is what request handlers depend on: a single text-generation call
// that hides provider selection.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}
