package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// Named is implemented by providers that can describe themselves for logs.
type Named interface {
	Name() string
	ModelName() string
}

// ErrNoProvider is returned when no configured provider is reachable.
var ErrNoProvider = errors.New("no LLM provider available")

const defaultTimeout = 120 * time.Second

// Config selects and configures a provider.
type Config struct {
	Provider    string
	Model       string
	OllamaURL   string
	OpenAIModel string
	GeminiModel string
	APIKeyEnv   string
	Timeout     time.Duration
}

// CreateProvider creates an LLM provider based on configuration. An
// unreachable Ollama falls back to OpenAI when an API key is present.
func CreateProvider(ctx context.Context, cfg Config, logger *zap.Logger) (Provider, error) {
	logger = logging.OrNop(logger)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		key := firstEnv(cfg.APIKeyEnv, "GEMINI_API_KEY", "GOOGLE_API_KEY")
		p, err := NewGeminiProvider(ctx, key, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
		}
		logger.Info("using Gemini", logging.ModelFields("gemini", p.Model)...)
		return p, nil
	case "ollama":
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL, timeout)
		p.Logger = logger
		if p.IsConfigured() {
			logger.Info("using Ollama", logging.ModelFields("ollama", cfg.Model)...)
			return p, nil
		}
		logger.Warn("Ollama not available, trying OpenAI fallback", zap.String("url", cfg.OllamaURL))
	}

	p := NewOpenAIProvider(cfg.OpenAIModel, firstEnv(cfg.APIKeyEnv, "OPENAI_API_KEY"), timeout)
	if p.IsConfigured() {
		logger.Info("using OpenAI", logging.ModelFields("openai", cfg.OpenAIModel)...)
		return p, nil
	}

	return nil, fmt.Errorf("%w: check Ollama is running or set %s", ErrNoProvider, cfg.APIKeyEnv)
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}
