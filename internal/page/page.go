// File: internal/page/page.go
package page

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/browser"
	"github.com/xkilldash9x/selfheal/internal/healing"
	"github.com/xkilldash9x/selfheal/internal/locators"
	"github.com/xkilldash9x/selfheal/internal/probe"
)

// Healer recovers from a failed lookup. *healing.Healer satisfies it.
type Healer interface {
	Heal(ctx context.Context, req healing.Request) (*healing.Resolution, error)
}

// Result is the outcome of a page action.
type Result struct {
	// Value is the element text for GetText.
	Value   string
	Healed  bool
	Attempt *schemas.HealingAttempt
}

// Page performs actions on named locators. A lookup failure is handed to the
// healer explicitly; when healing does not succeed the original lookup error
// is returned unchanged.
type Page struct {
	driver   browser.Driver
	registry *locators.Registry
	healer   Healer
	logger   *zap.Logger
}

// New returns a Page. A nil healer disables healing.
func New(driver browser.Driver, registry *locators.Registry, healer Healer, logger *zap.Logger) *Page {
	return &Page{
		driver:   driver,
		registry: registry,
		healer:   healer,
		logger:   logger.Named("page"),
	}
}

func (p *Page) Click(ctx context.Context, name string) (Result, error) {
	return p.Do(ctx, name, probe.Action{Kind: schemas.ActionClick})
}

func (p *Page) SendKeys(ctx context.Context, name, text string) (Result, error) {
	return p.Do(ctx, name, probe.Action{Kind: schemas.ActionSendKeys, Text: text})
}

func (p *Page) GetText(ctx context.Context, name string) (Result, error) {
	return p.Do(ctx, name, probe.Action{Kind: schemas.ActionGetText})
}

// Do runs action against the locator registered as name.
func (p *Page) Do(ctx context.Context, name string, action probe.Action) (Result, error) {
	def, err := p.registry.Lookup(name)
	if err != nil {
		return Result{}, err
	}

	value, err := probe.Perform(ctx, p.driver, action, def.Strategy, def.Value)
	if err == nil {
		return Result{Value: value}, nil
	}
	if !browser.IsLookupFailure(err) || p.healer == nil {
		return Result{}, err
	}

	// The heal starts from what the file holds, not from a run override.
	stored, lerr := p.registry.Original(name)
	if lerr != nil {
		return Result{}, lerr
	}
	res, herr := p.healer.Heal(ctx, healing.Request{Action: action, Definition: stored, Err: err})
	if herr != nil {
		p.logger.Warn("Healing aborted", zap.String("locator", name), zap.Error(herr))
	}
	if !res.Healed() {
		var attempt *schemas.HealingAttempt
		if res != nil {
			attempt = res.Attempt
		}
		return Result{Attempt: attempt}, err
	}

	winner := res.Attempt.Selected
	record := p.registry.Override
	if res.Attempt.AutoFix.Status == schemas.AutoFixSuccess {
		record = p.registry.Commit
	}
	if oerr := record(name, winner.Strategy, winner.Selector); oerr != nil {
		p.logger.Error("Could not record healed locator", zap.String("locator", name), zap.Error(oerr))
	}
	return Result{Value: res.Text, Healed: true, Attempt: res.Attempt}, nil
}
