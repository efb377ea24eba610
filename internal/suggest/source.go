// File: internal/suggest/source.go
package suggest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/config"
)

// Suggestion is the ranked output of a Source for one failure.
type Suggestion struct {
	Source        string
	Candidates    []schemas.Candidate
	Selected      *schemas.Candidate
	HumanRequired bool
	FallbackUsed  bool
	Attempts      int
	// ErrorLabel is the failure classification, when one was made.
	ErrorLabel string
	Logs       []string
}

// Source produces replacement locator candidates from a failure context and
// the DOM snapshot captured with it.
type Source interface {
	Name() string
	Suggest(ctx context.Context, fc schemas.FailureContext, dom string) (*Suggestion, error)
}

// NewSource returns the variant selected by cfg.Analyzer. svc may be nil, in
// which case the workflow runs on heuristics alone.
func NewSource(cfg config.SelfHealingConfig, svc Service, logger *zap.Logger) (Source, error) {
	switch cfg.Analyzer {
	case config.AnalyzerHeuristic:
		return NewHeuristicSource(cfg), nil
	case config.AnalyzerWorkflow, "":
		return NewWorkflowSource(cfg, svc, logger), nil
	default:
		return nil, fmt.Errorf("unknown analyzer %q", cfg.Analyzer)
	}
}

// selectTop marks the first candidate as selected and flags the suggestion
// for human review when its confidence is under threshold. An empty list
// always needs a human.
func selectTop(cands []schemas.Candidate, threshold float64) (*schemas.Candidate, bool) {
	if len(cands) == 0 {
		return nil, true
	}
	top := cands[0]
	return &top, top.Confidence < threshold
}
