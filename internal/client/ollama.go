package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
)

// OllamaGateway completes prompts against a local or remote Ollama server.
type OllamaGateway struct {
	client      *api.Client
	model       string
	temperature float32
	topP        float32
}

// NewOllamaGateway creates an Ollama gateway. The HTTP client has no timeout of
// its own; per-call timeouts come from the request context.
func NewOllamaGateway(baseURL, model string, temperature, topP float32) (*OllamaGateway, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL %q: %w", baseURL, err)
	}

	logging.Debug("creating ollama gateway", "url", u.String(), "model", model)

	return &OllamaGateway{
		client:      api.NewClient(u, http.DefaultClient),
		model:       model,
		temperature: temperature,
		topP:        topP,
	}, nil
}

// Name returns the provider name.
func (g *OllamaGateway) Name() string { return "ollama" }

// Complete sends one non-streaming chat request.
func (g *OllamaGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	var messages []api.Message
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	chatReq := &api.ChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   Ptr(false),
		Options: map[string]interface{}{
			"temperature": g.temperature,
			"top_p":       g.topP,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}

	var (
		text strings.Builder
		comp = &Completion{Model: g.model}
	)
	err := g.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		if resp.Done {
			comp.PromptTokens = resp.PromptEvalCount
			comp.CompletionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, Classify(g.Name(), ollamaStatus(err), err)
	}

	comp.Text = text.String()
	comp.UsageTokens = comp.PromptTokens + comp.CompletionTokens
	return comp, nil
}

func ollamaStatus(err error) int {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var statusErrPtr *api.StatusError
	if errors.As(err, &statusErrPtr) {
		return statusErrPtr.StatusCode
	}
	return 0
}
