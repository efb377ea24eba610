package schemas

import (
	"context"
)

// -- Suggestion Service LLM Contract --

// ModelTier picks a model by cost. Classification and selection run on the
// fast tier; locator proposals run on the powerful one.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions tunes a single completion.
type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	// ForceJSONFormat asks the provider for an application/json response.
	// Replies are still fence-stripped before decoding.
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest is one prompt sent to the suggestion model.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient is the provider behind the LLM-backed suggestion service.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
