// File: internal/healing/healer.go
package healing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/audit"
	"github.com/xkilldash9x/selfheal/internal/autofix"
	"github.com/xkilldash9x/selfheal/internal/capture"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/probe"
	"github.com/xkilldash9x/selfheal/internal/suggest"
)

// Request describes one failed lookup to heal.
type Request struct {
	Action     probe.Action
	Definition schemas.LocatorDefinition
	// Err is the original lookup error.
	Err error
}

// Resolution is the outcome of a Heal call.
type Resolution struct {
	Attempt *schemas.HealingAttempt
	// Text is the element text when a get_text probe succeeded.
	Text string
}

// Healed reports whether a candidate was validated on the live page.
func (r *Resolution) Healed() bool { return r != nil && r.Attempt != nil && r.Attempt.Healed }

// Healer runs the resolution pipeline for one failure at a time: capture,
// suggest, probe, persist and audit. It is not safe for concurrent use; the
// probe owns the browser session for the duration of a call.
type Healer struct {
	cfg       config.SelfHealingConfig
	recorder  *capture.Recorder
	source    suggest.Source
	prober    *probe.Prober
	persister *autofix.Persister
	log       *audit.Log
	logger    *zap.Logger
	newID     func() string
}

// Deps are the pipeline stages a Healer drives.
type Deps struct {
	Recorder  *capture.Recorder
	Source    suggest.Source
	Prober    *probe.Prober
	Persister *autofix.Persister
	Log       *audit.Log
}

func New(cfg config.SelfHealingConfig, deps Deps, logger *zap.Logger) *Healer {
	return &Healer{
		cfg:       cfg,
		recorder:  deps.Recorder,
		source:    deps.Source,
		prober:    deps.Prober,
		persister: deps.Persister,
		log:       deps.Log,
		logger:    logger.Named("healer"),
		newID:     uuid.NewString,
	}
}

// Heal attempts to recover from req.Err. Stage failures degrade the attempt
// rather than aborting it, and the attempt is audited whatever its outcome.
// An error is returned only when ctx ends or the action cannot be replayed;
// the attempt recorded so far is still returned alongside it.
func (h *Healer) Heal(ctx context.Context, req Request) (*Resolution, error) {
	attempt := &schemas.HealingAttempt{
		ID:         h.newID(),
		Status:     schemas.StatusFailed,
		Candidates: []schemas.Candidate{},
		AutoFix:    schemas.AutoFixAudit{Status: schemas.AutoFixNotAttempted},
	}
	res := &Resolution{Attempt: attempt}
	logger := h.logger.With(
		zap.String("attempt_id", attempt.ID),
		zap.String("locator", req.Definition.Name),
		zap.String("action", string(req.Action.Kind)))

	logger.Info("Lookup failed; starting healing", zap.Error(req.Err))

	failure := h.recorder.Capture(ctx, req.Action.Kind, req.Definition, req.Err)
	attempt.Context = failure.Context
	attempt.ContextPath = failure.ContextPath

	err := h.resolve(ctx, logger, req, failure, res)
	h.record(logger, attempt)
	return res, err
}

func (h *Healer) resolve(ctx context.Context, logger *zap.Logger, req Request, failure capture.Failure, res *Resolution) error {
	attempt := res.Attempt

	if failure.DOM == "" {
		logger.Warn("No DOM snapshot; nothing to derive candidates from")
		attempt.Source = capture.SourceNoDOM
		attempt.HumanRequired = true
	} else {
		sug, err := h.source.Suggest(ctx, failure.Context, failure.DOM)
		switch {
		case err != nil && ctx.Err() != nil:
			attempt.Source = h.source.Name()
			return ctx.Err()
		case err != nil:
			logger.Error("Suggestion source failed", zap.Error(err))
			attempt.Source = h.source.Name()
			attempt.HumanRequired = true
		default:
			attempt.Source = sug.Source
			if sug.Candidates != nil {
				attempt.Candidates = sug.Candidates
			}
			attempt.HumanRequired = sug.HumanRequired
			attempt.FallbackUsed = sug.FallbackUsed
			attempt.Logs = sug.Logs
		}
	}

	h.writeCandidates(logger, attempt)

	if len(attempt.Candidates) == 0 {
		logger.Warn("No candidates to probe; healing failed")
		return nil
	}

	out, err := h.prober.Run(ctx, req.Action, attempt.Candidates)
	attempt.Probes = out.Probes
	if err != nil {
		if errors.Is(err, probe.ErrUnsupportedAction) {
			logger.Error("Cannot replay action", zap.Error(err))
		}
		return err
	}
	if out.Winner == nil {
		logger.Warn("Every probed candidate failed", zap.Int("probes", len(out.Probes)))
		return nil
	}

	winner := *out.Winner
	attempt.Selected = &winner
	attempt.Healed = true
	res.Text = out.Text
	logger.Info("Candidate validated on the live page",
		zap.String("selector", winner.Selector),
		zap.String("strategy", string(winner.Strategy)),
		zap.Float64("confidence", winner.Confidence),
		zap.Int("probes", len(out.Probes)),
		zap.Bool("human_required", attempt.HumanRequired))

	fix, err := h.persister.Apply(ctx, req.Definition, winner)
	attempt.AutoFix = fix
	if fix.Status == schemas.AutoFixManual {
		attempt.Status = schemas.StatusManualRequired
		return nil
	}

	// A validated candidate stays healed even when it could not be persisted.
	attempt.Status = schemas.StatusHealed
	if err != nil {
		logger.Error("Auto-fix failed; locator healed for this run only", zap.Error(err))
	}
	return nil
}

func (h *Healer) writeCandidates(logger *zap.Logger, attempt *schemas.HealingAttempt) {
	if attempt.ContextPath == "" {
		return
	}
	path := capture.CandidatesPath(attempt.ContextPath)
	file := capture.NewCandidatesFile(attempt.Context, attempt.ContextPath, attempt.Source,
		h.cfg.ConfidenceThreshold, attempt.HumanRequired, attempt.FallbackUsed, attempt.Candidates)
	if err := capture.WriteCandidates(path, file); err != nil {
		logger.Warn("Could not write candidates file", zap.String("path", path), zap.Error(err))
		return
	}
	attempt.CandidatesPath = path
}

func (h *Healer) record(logger *zap.Logger, attempt *schemas.HealingAttempt) {
	entry, err := h.log.Append(attempt)
	if err != nil {
		logger.Error("Could not append to healing report", zap.Error(err))
		return
	}
	logger.Info("Healing attempt finished",
		zap.String("status", string(attempt.Status)),
		zap.Int("sequence", entry.Sequence),
		zap.String("auto_fix", string(attempt.AutoFix.Status)))
}
