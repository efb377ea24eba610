// File: internal/suggest/workflow.go
package suggest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/heuristics"
)

const (
	// SourceWorkflow names the workflow variant in candidates files.
	SourceWorkflow = "workflow"
	// ProposalConfidence is assigned to every externally proposed selector.
	ProposalConfidence = 0.75
	// MaxWorkflowCandidates caps the merged candidate list.
	MaxWorkflowCandidates = 15
	// chooseWindow is how many top candidates the service may choose from.
	chooseWindow = 5
)

// Stage is a workflow state.
type Stage int

const (
	StageErrorAnalysis Stage = iota
	StageLocatorGeneration
	StageValidation
	StageRanking
	StageSelection
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageErrorAnalysis:
		return "error_analysis"
	case StageLocatorGeneration:
		return "locator_generation"
	case StageValidation:
		return "validation"
	case StageRanking:
		return "ranking"
	case StageSelection:
		return "selection"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// WorkflowSource runs error analysis, generation, validation, ranking and
// selection, looping back to generation while nothing is selected and
// attempts remain. No stage failure aborts the run.
type WorkflowSource struct {
	svc         Service
	preferences []string
	threshold   float64
	maxAttempts int
	timeout     time.Duration
	logger      *zap.Logger
}

func NewWorkflowSource(cfg config.SelfHealingConfig, svc Service, logger *zap.Logger) *WorkflowSource {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &WorkflowSource{
		svc:         svc,
		preferences: cfg.Preferences(),
		threshold:   cfg.ConfidenceThreshold,
		maxAttempts: maxAttempts,
		timeout:     cfg.SuggestionTimeout,
		logger:      logger.Named("workflow"),
	}
}

func (w *WorkflowSource) Name() string { return SourceWorkflow }

type workflowState struct {
	fc            schemas.FailureContext
	dom           string
	attempt       int
	fallback      bool
	label         string
	candidates    []schemas.Candidate
	selected      *schemas.Candidate
	humanRequired bool
	logs          []string
}

func (st *workflowState) logf(format string, args ...interface{}) {
	st.logs = append(st.logs, fmt.Sprintf(format, args...))
}

func (w *WorkflowSource) Suggest(ctx context.Context, fc schemas.FailureContext, dom string) (*Suggestion, error) {
	st := &workflowState{fc: fc, dom: dom, attempt: 1}

	for stage := StageErrorAnalysis; stage != StageDone; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.logger.Debug("Entering stage", zap.Stringer("stage", stage), zap.Int("attempt", st.attempt))

		switch stage {
		case StageErrorAnalysis:
			w.analyzeError(ctx, st)
			stage = StageLocatorGeneration
		case StageLocatorGeneration:
			w.generate(ctx, st)
			stage = StageValidation
		case StageValidation:
			st.candidates = heuristics.ValidateAgainstDOM(st.candidates, st.dom)
			st.logf("validation: validated=%d", len(st.candidates))
			stage = StageRanking
		case StageRanking:
			sort.SliceStable(st.candidates, func(i, j int) bool {
				return st.candidates[i].Confidence > st.candidates[j].Confidence
			})
			if len(st.candidates) > 0 {
				st.logf("ranking: top_confidence=%.3f", st.candidates[0].Confidence)
			} else {
				st.logf("ranking: top_confidence=n/a")
			}
			stage = StageSelection
		case StageSelection:
			w.choose(ctx, st)
			stage = w.next(st)
		}
	}

	return &Suggestion{
		Source:        SourceWorkflow,
		Candidates:    st.candidates,
		Selected:      st.selected,
		HumanRequired: st.humanRequired,
		FallbackUsed:  st.fallback,
		Attempts:      st.attempt,
		ErrorLabel:    st.label,
		Logs:          st.logs,
	}, nil
}

// next is the conditional transition out of selection.
func (w *WorkflowSource) next(st *workflowState) Stage {
	if st.selected == nil && st.attempt < w.maxAttempts {
		st.attempt++
		st.fallback = true
		st.logf("conditional: retrying locator_generation due to no selection")
		return StageLocatorGeneration
	}
	if st.humanRequired {
		st.logf("conditional: human_in_loop")
	}
	return StageDone
}

// bounded returns ctx limited by the suggestion timeout.
func (w *WorkflowSource) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}

// ClassifyLocally labels a failure from its exception kind and message.
func ClassifyLocally(exceptionType, message string) string {
	text := strings.ToLower(exceptionType + " " + message)
	switch {
	case strings.Contains(text, "stale"):
		return LabelStale
	case strings.Contains(text, "timeout") || strings.Contains(text, "timed out"):
		return LabelTiming
	default:
		return LabelInvalidLocator
	}
}

func (w *WorkflowSource) analyzeError(ctx context.Context, st *workflowState) {
	st.label = ClassifyLocally(st.fc.ExceptionType, st.fc.ExceptionMessage)
	st.logf("error_analysis: dom_present=%t, error=%s, label=%s", st.dom != "", st.fc.ExceptionMessage, st.label)
	if w.svc == nil {
		return
	}

	cctx, cancel := w.bounded(ctx)
	defer cancel()
	label, err := w.svc.Classify(cctx, st.fc.ExceptionType+": "+st.fc.ExceptionMessage)
	if err != nil {
		st.logf("error_analysis: llm_failed=%v", err)
		w.logger.Debug("Classification failed", zap.Error(err))
		return
	}
	st.label = label
	st.logf("error_analysis: ai_label=%s", label)
}

// generationPreferences returns the configured order, widened on a fallback
// pass with the rest of the default attribute table.
func (w *WorkflowSource) generationPreferences(fallback bool) []string {
	if !fallback {
		return w.preferences
	}
	seen := make(map[string]bool, len(w.preferences))
	out := make([]string, 0, len(w.preferences)+len(config.DefaultSelectorPreferences))
	for _, list := range [][]string{w.preferences, config.DefaultSelectorPreferences} {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func (w *WorkflowSource) generate(ctx context.Context, st *workflowState) {
	prefs := w.generationPreferences(st.fallback)
	cands := heuristics.Candidates(heuristics.HarvestAttributes(st.dom, prefs), MaxWorkflowCandidates)

	if w.svc != nil && st.dom != "" {
		cands = append(cands, w.proposals(ctx, st, prefs)...)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].StabilityScore > cands[j].StabilityScore
	})
	st.candidates = heuristics.Truncate(heuristics.Dedup(cands), MaxWorkflowCandidates)
	st.logf("locator_generation: produced=%d", len(st.candidates))
}

// proposals asks the service for selectors. Any failure leaves the
// heuristic candidates as the only result.
func (w *WorkflowSource) proposals(ctx context.Context, st *workflowState, prefs []string) []schemas.Candidate {
	cctx, cancel := w.bounded(ctx)
	defer cancel()

	resp, err := w.svc.Suggest(cctx, Request{
		DOMContent:          st.dom,
		FailedLocator:       fmt.Sprintf("(%s, %s)", st.fc.Locator.Strategy, st.fc.Locator.Value),
		ExceptionType:       st.fc.ExceptionType,
		SelectorPreferences: prefs,
	})
	if err != nil {
		st.logf("locator_generation: llm_failed=%v", err)
		w.logger.Warn("Suggestion service failed; continuing with heuristic candidates", zap.Error(err))
		return nil
	}

	out := make([]schemas.Candidate, 0, len(resp.Candidates))
	for _, p := range resp.Candidates {
		if err := heuristics.CheckSelector(p.Strategy, p.Value); err != nil {
			st.logf("locator_generation: rejected proposal %q: %v", p.Value, err)
			continue
		}
		out = append(out, schemas.Candidate{
			Selector:       p.Value,
			Strategy:       p.Strategy,
			AttributesUsed: []schemas.AttributeUse{},
			StabilityScore: ProposalConfidence,
			Confidence:     ProposalConfidence,
			Rationale:      fmt.Sprintf("LLM proposal: %s (model confidence %.2f)", p.Rationale, p.Confidence),
		})
	}
	return out
}

// choose selects the top candidate, letting the service pick among the top
// few when it is available. The chosen candidate is moved to the front.
func (w *WorkflowSource) choose(ctx context.Context, st *workflowState) {
	if len(st.candidates) == 0 {
		st.selected, st.humanRequired = nil, true
		st.logf("selection: confidence=0 human_required=true")
		return
	}

	if w.svc != nil && len(st.candidates) > 1 {
		window := st.candidates
		if len(window) > chooseWindow {
			window = window[:chooseWindow]
		}
		cctx, cancel := w.bounded(ctx)
		choice, err := w.svc.Choose(cctx, w.threshold, window)
		cancel()
		if err != nil {
			st.logf("selection: llm_failed=%v", err)
		} else if choice.Index > 0 && choice.Index < len(window) {
			picked := st.candidates[choice.Index]
			picked.Rationale = "LLM: " + choice.Rationale
			copy(st.candidates[1:choice.Index+1], st.candidates[:choice.Index])
			st.candidates[0] = picked
		}
	}

	st.selected, st.humanRequired = selectTop(st.candidates, w.threshold)
	st.logf("selection: confidence=%.3f human_required=%t", st.selected.Confidence, st.humanRequired)
}
