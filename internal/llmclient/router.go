package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

// LLMRouter implements schemas.LLMClient and dispatches by model tier.
type LLMRouter struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
}

// NewLLMRouter creates a router with one client per tier.
func NewLLMRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient) (*LLMRouter, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}

	return &LLMRouter{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

// Generate routes the request to the client for req.Tier. An empty tier
// selects the fast tier; locator suggestions are latency sensitive.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierFast
	}

	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	return client.Generate(ctx, req)
}

// Close closes every distinct underlying client.
func (r *LLMRouter) Close() error {
	seen := make(map[schemas.LLMClient]bool, len(r.clients))
	var errs []error
	for _, tier := range []schemas.ModelTier{schemas.TierFast, schemas.TierPowerful} {
		c := r.clients[tier]
		if c == nil || seen[c] {
			continue
		}
		seen[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s client: %w", tier, err))
		}
	}
	return errors.Join(errs...)
}
