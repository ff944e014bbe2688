package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
)

// OpenAIConfig configures an OpenAI-compatible gateway (Groq, OpenAI, vLLM).
type OpenAIConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	TopP        float32
}

// OpenAIGateway completes prompts through the chat completions API.
type OpenAIGateway struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIGateway creates a gateway for an OpenAI-compatible endpoint.
func NewOpenAIGateway(cfg OpenAIConfig) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key required", cfg.Provider)
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	logging.Debug("creating openai-compatible gateway",
		"provider", cfg.Provider,
		"base_url", oc.BaseURL,
		"model", cfg.Model)

	return &OpenAIGateway{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
	}, nil
}

// Name returns the provider name.
func (g *OpenAIGateway) Name() string { return g.cfg.Provider }

// Complete sends one chat completion request.
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               g.cfg.Model,
		Messages:            messages,
		Temperature:         g.cfg.Temperature,
		TopP:                g.cfg.TopP,
		MaxCompletionTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, Classify(g.cfg.Provider, openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return nil, &GatewayError{Kind: KindTransient, Provider: g.cfg.Provider, Err: errors.New("empty choices in response")}
	}

	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		UsageTokens:      usageOrSum(resp.Usage.TotalTokens, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
