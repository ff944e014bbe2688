package client

import (
	"context"
	"fmt"
	"os"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/config"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/ratelimit"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/robustness"
)

// New builds the configured gateway chain: each provider gets its own retry
// loop and circuit breaker; all providers share one rate limiter.
func New(ctx context.Context, cfg *config.Config, status StatusCallback, estimate func(string) int) (Gateway, error) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		TokensPerMinute:   cfg.RateLimit.TokensPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
	})

	providers := append([]config.FallbackConfig{{Provider: cfg.API.Provider, Model: cfg.Model.Name}}, cfg.API.Fallback...)
	chain := make([]Gateway, 0, len(providers))
	for _, p := range providers {
		base, err := newProvider(ctx, cfg, p.Provider, p.Model)
		if err != nil {
			return nil, err
		}

		opts := Options{
			Retry: RetryConfig{
				MaxRetries: cfg.Retry.MaxRetries,
				RetryDelay: cfg.Retry.RetryDelay,
				MaxDelay:   cfg.Retry.MaxDelay,
			},
			CallTimeout: cfg.Retry.CallTimeout,
			Limiter:     limiter,
			Status:      status,
			Estimate:    estimate,
		}
		if cfg.CircuitBreaker.Enabled {
			opts.Breaker = robustness.NewCircuitBreaker(cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.ResetTimeout)
		}
		chain = append(chain, NewResilient(base, opts))
	}

	logging.Debug("creating gateway",
		"provider", cfg.API.Provider,
		"fallback", cfg.API.Fallback,
		"model", cfg.Model.Name)

	if len(chain) == 1 {
		return chain[0], nil
	}
	return NewFallback(chain...)
}

func newProvider(ctx context.Context, cfg *config.Config, name, model string) (Gateway, error) {
	key := providerKey(cfg, name)
	switch name {
	case "groq", "openai":
		baseURL := cfg.API.BaseURL
		if name == "openai" && baseURL == config.DefaultGroqBaseURL {
			baseURL = ""
		}
		return NewOpenAIGateway(OpenAIConfig{
			Provider:    name,
			APIKey:      key,
			BaseURL:     baseURL,
			Model:       model,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
		})
	case "gemini":
		return NewGeminiGateway(ctx, key, model, cfg.Model.Temperature, cfg.Model.TopP)
	case "ollama":
		return NewOllamaGateway(cfg.API.OllamaBaseURL, model, cfg.Model.Temperature, cfg.Model.TopP)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// providerKey uses the configured key for the active provider and the
// provider's own environment variable for fallbacks.
func providerKey(cfg *config.Config, name string) string {
	if name == cfg.API.Provider {
		return cfg.API.APIKey
	}
	switch name {
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}
