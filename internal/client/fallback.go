package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
)

// FallbackGateway tries each gateway in order until one succeeds.
type FallbackGateway struct {
	gateways []Gateway
}

// NewFallback creates a FallbackGateway. At least one gateway must be provided.
func NewFallback(gateways ...Gateway) (*FallbackGateway, error) {
	if len(gateways) == 0 {
		return nil, fmt.Errorf("fallback gateway requires at least one gateway")
	}
	return &FallbackGateway{gateways: gateways}, nil
}

// Name joins the chain of provider names.
func (f *FallbackGateway) Name() string {
	names := make([]string, len(f.gateways))
	for i, g := range f.gateways {
		names[i] = g.Name()
	}
	return strings.Join(names, ">")
}

// Complete returns the first successful completion. The error of the last
// gateway is returned when all fail.
func (f *FallbackGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	var errs []error
	for i, g := range f.gateways {
		comp, err := g.Complete(ctx, req)
		if err == nil {
			return comp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logging.Warn("gateway: provider failed",
			"index", i,
			"provider", g.Name(),
			"error", err.Error())
		errs = append(errs, err)
	}

	last := errs[len(errs)-1]
	if len(errs) == 1 {
		return nil, last
	}
	return nil, fmt.Errorf("all %d providers failed: %w", len(errs), errors.Join(errs...))
}
