package suggest

import (
	"context"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/heuristics"
)

// SourceHeuristic names the heuristic variant in candidates files.
const SourceHeuristic = "heuristic"

// HeuristicSource returns the scorer output directly.
type HeuristicSource struct {
	preferences []string
	threshold   float64
	limit       int
}

func NewHeuristicSource(cfg config.SelfHealingConfig) *HeuristicSource {
	return &HeuristicSource{
		preferences: cfg.Preferences(),
		threshold:   cfg.ConfidenceThreshold,
		limit:       cfg.MaxCandidates,
	}
}

func (h *HeuristicSource) Name() string { return SourceHeuristic }

func (h *HeuristicSource) Suggest(ctx context.Context, fc schemas.FailureContext, dom string) (*Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cands := heuristics.GenerateCandidates(dom, h.preferences, h.limit)
	selected, human := selectTop(cands, h.threshold)
	return &Suggestion{
		Source:        SourceHeuristic,
		Candidates:    cands,
		Selected:      selected,
		HumanRequired: human,
		Attempts:      1,
	}, nil
}
