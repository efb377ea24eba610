// File: internal/browser/rod_driver.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/config"
)

// RodDriver implements Driver with go-rod.
type RodDriver struct {
	browser       *rod.Browser
	page          *rod.Page
	launcher      *launcher.Launcher
	lookupTimeout time.Duration
	navTimeout    time.Duration
	logger        *zap.Logger
}

// NewRodDriver launches a local Chrome through the rod launcher, or connects
// to DebuggerURL when set, and opens a blank page.
func NewRodDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*RodDriver, error) {
	log := logger.Named("rod")

	var l *launcher.Launcher
	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l = launcher.New().Headless(cfg.Headless)
		for _, raw := range cfg.Args {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if name == "" {
				continue
			}
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		log.Debug("Launched local chrome", zap.String("control_url", controlURL))
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("open page: %w", err)
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: w, Height: h, DeviceScaleFactor: 1}); err != nil {
			log.Warn("Failed to set viewport", zap.Error(err))
		}
	}

	return &RodDriver{
		browser:       b,
		page:          page,
		launcher:      l,
		lookupTimeout: cfg.LookupTimeout,
		navTimeout:    cfg.NavigationTimeout,
		logger:        log,
	}, nil
}

// withTimeout derives a context bounded by timeout when it is positive.
// Callers must release it with the returned cancel func.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// scoped binds the page to ctx and the lookup timeout.
func (d *RodDriver) scoped(ctx context.Context) (*rod.Page, context.CancelFunc) {
	c, cancel := withTimeout(ctx, d.lookupTimeout)
	return d.page.Context(c), cancel
}

func rodNotFound(err error) bool {
	var nf *rod.ElementNotFoundError
	return errors.As(err, &nf)
}

// FindElement waits up to the lookup timeout for a match.
func (d *RodDriver) FindElement(ctx context.Context, strategy schemas.Strategy, selector string) (Element, error) {
	p, cancel := d.scoped(ctx)
	defer cancel()

	var el *rod.Element
	var err error
	switch strategy {
	case schemas.StrategyCSS:
		el, err = p.Element(selector)
	case schemas.StrategyXPath:
		el, err = p.ElementX(selector)
	case schemas.StrategyID:
		el, err = p.Element(attrSelector("id", selector))
	case schemas.StrategyName:
		el, err = p.Element(attrSelector("name", selector))
	default:
		return nil, fmt.Errorf("unsupported locator strategy %q", strategy)
	}
	if err != nil {
		return nil, classify(strategy, selector, err, rodNotFound)
	}
	return &rodElement{el: el, strategy: strategy, selector: selector, timeout: d.lookupTimeout}, nil
}

func (d *RodDriver) PageSource(ctx context.Context) (string, error) {
	p, cancel := d.scoped(ctx)
	defer cancel()
	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("reading page source: %w", err)
	}
	return html, nil
}

func (d *RodDriver) SaveScreenshot(ctx context.Context, path string) error {
	p, cancel := d.scoped(ctx)
	defer cancel()
	buf, err := p.Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("writing screenshot: %w", err)
	}
	return nil
}

func (d *RodDriver) CurrentURL(ctx context.Context) (string, error) {
	p, cancel := d.scoped(ctx)
	defer cancel()
	info, err := p.Info()
	if err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	return info.URL, nil
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	c, cancel := withTimeout(ctx, d.navTimeout)
	defer cancel()
	p := d.page.Context(c)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s to load: %w", url, err)
	}
	return nil
}

// Close closes the browser and, when it was launched locally, kills the
// process.
func (d *RodDriver) Close() error {
	err := d.browser.Close()
	if d.launcher != nil {
		d.launcher.Kill()
	}
	return err
}

type rodElement struct {
	el       *rod.Element
	strategy schemas.Strategy
	selector string
	timeout  time.Duration
}

func (e *rodElement) scoped(ctx context.Context) (*rod.Element, context.CancelFunc) {
	c, cancel := withTimeout(ctx, e.timeout)
	return e.el.Context(c), cancel
}

func (e *rodElement) wrap(err error) error {
	if err == nil {
		return nil
	}
	return classify(e.strategy, e.selector, err, rodNotFound)
}

func (e *rodElement) Click(ctx context.Context) error {
	el, cancel := e.scoped(ctx)
	defer cancel()
	return e.wrap(el.Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) Clear(ctx context.Context) error {
	el, cancel := e.scoped(ctx)
	defer cancel()
	if err := el.SelectAllText(); err != nil {
		return e.wrap(err)
	}
	return e.wrap(el.Input(""))
}

func (e *rodElement) SendKeys(ctx context.Context, text string) error {
	el, cancel := e.scoped(ctx)
	defer cancel()
	return e.wrap(el.Input(text))
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	el, cancel := e.scoped(ctx)
	defer cancel()
	text, err := el.Text()
	if err != nil {
		return "", e.wrap(err)
	}
	return text, nil
}
