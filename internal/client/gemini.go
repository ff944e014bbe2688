package client

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
)

// GeminiGateway completes prompts through the Gemini API.
type GeminiGateway struct {
	client *genai.Client
	model  string
	config genai.GenerateContentConfig
}

// NewGeminiGateway creates a Gemini gateway.
func NewGeminiGateway(ctx context.Context, apiKey, model string, temperature, topP float32) (*GeminiGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key required: get one at https://aistudio.google.com/apikey")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logging.Debug("creating gemini gateway", "model", model)

	return &GeminiGateway{
		client: client,
		model:  model,
		config: genai.GenerateContentConfig{
			Temperature: Ptr(temperature),
			TopP:        Ptr(topP),
		},
	}, nil
}

// Name returns the provider name.
func (g *GeminiGateway) Name() string { return "gemini" }

// Complete sends one generate-content request.
func (g *GeminiGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	config := g.config
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), &config)
	if err != nil {
		return nil, Classify(g.Name(), geminiStatus(err), err)
	}

	comp := &Completion{Text: resp.Text(), Model: g.model}
	if resp.UsageMetadata != nil {
		comp.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		comp.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		comp.UsageTokens = usageOrSum(int(resp.UsageMetadata.TotalTokenCount), comp.PromptTokens, comp.CompletionTokens)
	}
	return comp, nil
}

func geminiStatus(err error) int {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
