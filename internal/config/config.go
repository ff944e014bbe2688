package config

import "time"

// Config represents the main application configuration.
type Config struct {
	API            APIConfig            `yaml:"api"`
	Model          ModelConfig          `yaml:"model"`
	Retry          RetryConfig          `yaml:"retry"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Context        ContextConfig        `yaml:"context"`
	Pipeline       PipelineConfig       `yaml:"pipeline"`
	Storage        StorageConfig        `yaml:"storage"`
	Logging        LoggingConfig        `yaml:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds completion provider settings.
type APIConfig struct {
	// Active provider: groq, openai, gemini, ollama
	Provider string `yaml:"provider" validate:"oneof=groq openai gemini ollama"`

	// Key for the active provider. Not required for ollama.
	APIKey string `yaml:"api_key,omitempty"`

	// Base URL for OpenAI-compatible providers (default: Groq endpoint)
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	// Ollama server URL (default: http://localhost:11434)
	OllamaBaseURL string `yaml:"ollama_base_url,omitempty" validate:"omitempty,url"`

	// Providers tried in order when the active one fails
	Fallback []FallbackConfig `yaml:"fallback,omitempty" validate:"dive"`
}

// FallbackConfig names a secondary provider and the model to use with it.
type FallbackConfig struct {
	Provider string `yaml:"provider" validate:"oneof=groq openai gemini ollama"`
	Model    string `yaml:"model" validate:"required"`
}

// ModelConfig holds sampling settings shared by all agents.
type ModelConfig struct {
	Name        string  `yaml:"name" validate:"required"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	TopP        float32 `yaml:"top_p" validate:"gt=0,lte=1"`
}

// RetryConfig holds retry settings for completion calls.
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay  time.Duration `yaml:"retry_delay" validate:"gte=0"`
	MaxDelay    time.Duration `yaml:"max_delay" validate:"gtefield=RetryDelay"`
	CallTimeout time.Duration `yaml:"call_timeout" validate:"gt=0"` // per attempt wall clock
}

// RateLimitConfig holds client-side rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool  `yaml:"enabled"`
	RequestsPerMinute int   `yaml:"requests_per_minute" validate:"gte=0"`
	TokensPerMinute   int64 `yaml:"tokens_per_minute" validate:"gte=0"`
	BurstSize         int   `yaml:"burst_size" validate:"gte=0"`
}

// CircuitBreakerConfig holds gateway circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Threshold    int           `yaml:"threshold" validate:"gte=1"`
	ResetTimeout time.Duration `yaml:"reset_timeout" validate:"gt=0"`
}

// ContextConfig holds token budget settings.
type ContextConfig struct {
	MaxContextTokens     int    `yaml:"max_context_tokens" validate:"gt=0"`
	SummaryTriggerTokens int    `yaml:"summary_trigger_tokens" validate:"gte=0"`
	Encoding             string `yaml:"encoding"` // tiktoken encoding; empty uses the heuristic
}

// PipelineConfig holds coordinator settings.
type PipelineConfig struct {
	MaxParseRetries  int    `yaml:"max_parse_retries" validate:"gte=0,lte=10"`
	Cascade          string `yaml:"cascade" validate:"oneof=stale auto"`
	BatchConcurrency int    `yaml:"batch_concurrency" validate:"gte=1"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DBPath string `yaml:"db_path" validate:"required"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
	File   string `yaml:"file,omitempty"` // empty logs to stderr
}

// MetricsConfig holds Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:      DefaultProvider,
			BaseURL:       DefaultGroqBaseURL,
			OllamaBaseURL: DefaultOllamaBaseURL,
		},
		Model: ModelConfig{
			Name:        DefaultModel,
			Temperature: DefaultTemperature,
			TopP:        DefaultTopP,
		},
		Retry: RetryConfig{
			MaxRetries:  DefaultMaxRetries,
			RetryDelay:  DefaultRetryDelay,
			MaxDelay:    DefaultMaxDelay,
			CallTimeout: DefaultCallTimeout,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: DefaultRequestsPerMinute,
			TokensPerMinute:   DefaultTokensPerMinute,
			BurstSize:         DefaultBurstSize,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:      true,
			Threshold:    DefaultBreakerThreshold,
			ResetTimeout: DefaultBreakerResetTimeout,
		},
		Context: ContextConfig{
			MaxContextTokens:     DefaultMaxContextTokens,
			SummaryTriggerTokens: DefaultSummaryTriggerTokens,
			Encoding:             DefaultEncoding,
		},
		Pipeline: PipelineConfig{
			MaxParseRetries:  DefaultMaxParseRetries,
			Cascade:          DefaultCascadePolicy,
			BatchConcurrency: DefaultBatchConcurrency,
		},
		Storage: StorageConfig{
			DBPath: defaultDBPath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
	}
}
