package client

import (
	"context"
	"time"
)

// Request is a single completion request issued by an agent.
type Request struct {
	System    string // system instruction
	Prompt    string // user prompt
	Role      string // role hint, used for logging and metrics
	MaxTokens int
}

// Completion is the provider response to a Request.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	UsageTokens      int           // total tokens billed for the final attempt
	Attempts         int           // 1 when the first attempt succeeded
	Latency          time.Duration // wall clock across all attempts
}

// Gateway is the only component that talks to an LLM provider.
// Implementations return *GatewayError for provider failures.
type Gateway interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Name() string
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func usageOrSum(total, prompt, completion int) int {
	if total > 0 {
		return total
	}
	return prompt + completion
}
