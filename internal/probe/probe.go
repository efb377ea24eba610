// File: internal/probe/probe.go
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/browser"
)

// ErrUnsupportedAction is returned for actions the prober cannot replay.
var ErrUnsupportedAction = errors.New("unsupported probe action")

// Action is the failed step to replay against each candidate.
type Action struct {
	Kind schemas.ActionKind
	// Text is typed for send_keys and ignored otherwise.
	Text string
}

// Outcome is the result of a probe run. Winner is nil when every probed
// candidate failed.
type Outcome struct {
	Winner *schemas.Candidate
	Probes []schemas.ProbeRecord
	// Text holds the element text read by a successful get_text probe.
	Text string
}

// Prober replays a failed action against ranked candidates on the live page.
// It owns the driver for the duration of Run; probes never overlap.
type Prober struct {
	driver      browser.Driver
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

func NewProber(driver browser.Driver, maxAttempts int, logger *zap.Logger) *Prober {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Prober{
		driver:      driver,
		maxAttempts: maxAttempts,
		logger:      logger.Named("probe"),
		now:         time.Now,
	}
}

// Run tries candidates in rank order and stops at the first success. At most
// maxAttempts candidates are probed. Individual probe failures are recorded
// in the outcome, not returned; Run errors only on an unsupported action or
// a cancelled context.
func (p *Prober) Run(ctx context.Context, action Action, cands []schemas.Candidate) (Outcome, error) {
	if !action.Kind.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnsupportedAction, action.Kind)
	}

	var out Outcome
	for i, c := range cands {
		if i >= p.maxAttempts {
			p.logger.Debug("Probe budget exhausted", zap.Int("max_attempts", p.maxAttempts), zap.Int("remaining", len(cands)-i))
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		start := p.now()
		text, err := p.perform(ctx, action, c)
		rec := schemas.ProbeRecord{
			Selector: c.Selector,
			Strategy: c.Strategy,
			OK:       err == nil,
			Duration: p.now().Sub(start),
		}
		if err != nil {
			rec.Error = err.Error()
		}
		out.Probes = append(out.Probes, rec)

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return out, err
			}
			p.logger.Debug("Candidate probe failed",
				zap.Int("rank", i+1),
				zap.String("selector", c.Selector),
				zap.Error(err))
			continue
		}

		winner := c
		out.Winner = &winner
		out.Text = text
		p.logger.Info("Candidate probe succeeded",
			zap.Int("rank", i+1),
			zap.String("selector", c.Selector),
			zap.String("action", string(action.Kind)))
		return out, nil
	}
	return out, nil
}

func (p *Prober) perform(ctx context.Context, action Action, c schemas.Candidate) (string, error) {
	return Perform(ctx, p.driver, action, c.Strategy, c.Selector)
}

// Perform looks up (strategy, selector) and runs action on the element. It
// returns the element text for get_text and an empty string otherwise.
func Perform(ctx context.Context, driver browser.Driver, action Action, strategy schemas.Strategy, selector string) (string, error) {
	el, err := driver.FindElement(ctx, strategy, selector)
	if err != nil {
		return "", err
	}
	switch action.Kind {
	case schemas.ActionClick:
		return "", el.Click(ctx)
	case schemas.ActionSendKeys:
		if err := el.Clear(ctx); err != nil {
			return "", fmt.Errorf("clear: %w", err)
		}
		return "", el.SendKeys(ctx, action.Text)
	case schemas.ActionGetText:
		return el.Text(ctx)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAction, action.Kind)
}
