// Package advisor consults an external text-generation service for
// human-readable commentary on diagnoses and logs. Nothing in the core's
// correctness depends on it: every call has a fixed fallback.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

var (
	// ErrNotConfigured is returned by the disabled backend.
	ErrNotConfigured = errors.New("advisor: backend not configured")
	// ErrUnsupportedBackend is returned for an unknown backend name.
	ErrUnsupportedBackend = errors.New("advisor: unsupported backend")
)

// Oracle turns a prompt into text.
type Oracle interface {
	Advise(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures an Oracle backend.
type Config struct {
	Backend string // "disabled" (default), "ollama", "openai"
	Model   string
	URL     string
	APIKey  string // openai only; falls back to OPENAI_API_KEY
}

// NewOracle builds the Oracle named by cfg.Backend.
func NewOracle(cfg Config) (Oracle, error) {
	switch cfg.Backend {
	case "", "disabled":
		return Disabled{}, nil

	case "ollama":
		url := cfg.URL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "llama3.2"
		}
		return NewOllamaOracle(url, model), nil

	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("advisor: OpenAI API key required (set advisor.api_key or OPENAI_API_KEY)")
		}
		url := cfg.URL
		if url == "" {
			url = "https://api.openai.com"
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return NewOpenAIOracle(url, apiKey, model), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Backend)
	}
}

// Disabled always fails with ErrNotConfigured, which makes every Advisor call
// return its fallback.
type Disabled struct{}

func (Disabled) Advise(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// Stub returns a fixed reply. It records the prompts it was given.
type Stub struct {
	Reply   string
	Err     error
	Prompts []string
}

func (s *Stub) Advise(_ context.Context, prompt string) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	return s.Reply, s.Err
}

// httpClient is shared by the HTTP backends. Generation calls are slow; the
// Advisor's own timeout is normally the tighter bound.
func httpClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
