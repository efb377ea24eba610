package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/config"
)

// NewClient builds a tier router from the router configuration. Both tiers
// share one rate limiter so llm.requests_per_minute is a global budget.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	limiter := newLimiter(cfg.RequestsPerMinute)

	fast, err := newModelClient(ctx, cfg, cfg.DefaultFastModel, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast tier client: %w", err)
	}

	powerful, err := newModelClient(ctx, cfg, cfg.DefaultPowerfulModel, limiter, logger)
	if err != nil {
		_ = fast.Close()
		return nil, fmt.Errorf("failed to create powerful tier client: %w", err)
	}

	return NewLLMRouter(logger, fast, powerful)
}

func newModelClient(ctx context.Context, cfg config.LLMRouterConfig, name string, limiter *rate.Limiter, logger *zap.Logger) (schemas.LLMClient, error) {
	modelCfg, ok := cfg.Models[name]
	if !ok {
		return nil, fmt.Errorf("model %q not defined under llm.models", name)
	}

	switch modelCfg.Provider {
	case config.ProviderGemini, "":
		return NewGoogleClient(ctx, modelCfg, limiter, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", modelCfg.Provider, config.ProviderGemini)
	}
}

// newLimiter converts a per-minute budget into a token bucket with a burst of
// one. A non-positive budget disables throttling.
func newLimiter(perMinute float64) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perMinute/60.0), 1)
}
