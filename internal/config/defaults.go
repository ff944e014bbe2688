package config

import "time"

// Default configuration values.
const (
	// Provider settings
	DefaultProvider      = "groq"
	DefaultModel         = "llama3-70b-8192"
	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultTemperature   = 0.1
	DefaultTopP          = 0.9

	// Retry settings
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultCallTimeout = 60 * time.Second

	// Rate limiting
	DefaultRequestsPerMinute = 30
	DefaultTokensPerMinute   = 60000
	DefaultBurstSize         = 5

	// Circuit breaker
	DefaultBreakerThreshold    = 5
	DefaultBreakerResetTimeout = 30 * time.Second

	// Context budget
	DefaultMaxContextTokens     = 4000
	DefaultSummaryTriggerTokens = 3000
	DefaultEncoding             = "cl100k_base"

	// Pipeline
	DefaultMaxParseRetries  = 2
	DefaultCascadePolicy    = "stale"
	DefaultBatchConcurrency = 4

	// Storage
	DefaultDBFile = "evoc.db"

	// Metrics
	DefaultMetricsAddr = ":9464"
)
