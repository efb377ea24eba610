// File: internal/browser/chromedp_driver.go
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/config"
)

// ChromeDriver implements Driver with chromedp.
type ChromeDriver struct {
	tabCtx        context.Context
	cancelTab     context.CancelFunc
	cancelAlloc   context.CancelFunc
	lookupTimeout time.Duration
	navTimeout    time.Duration
	logger        *zap.Logger
}

// execAllocatorOptions translates the browser config into chromedp
// allocator options. Extra args may be given as "flag" or "flag=value", with
// or without leading dashes.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", cfg.Headless),
	)
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// NewChromeDriver starts (or attaches to, when DebuggerURL is set) a Chrome
// instance and opens one tab.
func NewChromeDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeDriver, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if cfg.DebuggerURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, cfg.DebuggerURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, execAllocatorOptions(cfg)...)
	}

	log := logger.Named("chromedp")
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			log.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// The first Run launches the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &ChromeDriver{
		tabCtx:        tabCtx,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		lookupTimeout: cfg.LookupTimeout,
		navTimeout:    cfg.NavigationTimeout,
		logger:        log,
	}, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(d.tabCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(d.tabCtx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// query maps a locator to a chromedp selector and query option. id and name
// are rewritten as CSS attribute selectors.
func query(strategy schemas.Strategy, selector string) (string, chromedp.QueryOption, error) {
	switch strategy {
	case schemas.StrategyCSS:
		return selector, chromedp.ByQuery, nil
	case schemas.StrategyXPath:
		return selector, chromedp.BySearch, nil
	case schemas.StrategyID:
		return attrSelector("id", selector), chromedp.ByQuery, nil
	case schemas.StrategyName:
		return attrSelector("name", selector), chromedp.ByQuery, nil
	default:
		return "", nil, fmt.Errorf("unsupported locator strategy %q", strategy)
	}
}

func attrSelector(attr, value string) string {
	return "[" + attr + "='" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value) + "']"
}

// FindElement waits up to the lookup timeout for selector to be ready.
func (d *ChromeDriver) FindElement(ctx context.Context, strategy schemas.Strategy, selector string) (Element, error) {
	sel, by, err := query(strategy, selector)
	if err != nil {
		return nil, err
	}
	if err := d.run(ctx, d.lookupTimeout, chromedp.WaitReady(sel, by)); err != nil {
		return nil, classify(strategy, selector, err, nil)
	}
	return &chromeElement{driver: d, strategy: strategy, selector: selector, sel: sel, by: by}, nil
}

// PageSource returns the serialized document, doctype included.
func (d *ChromeDriver) PageSource(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, d.lookupTimeout, chromedp.ActionFunc(func(c context.Context) error {
		root, err := dom.GetDocument().Do(c)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(c)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("reading page source: %w", err)
	}
	return html, nil
}

// SaveScreenshot writes a PNG of the viewport to path.
func (d *ChromeDriver) SaveScreenshot(ctx context.Context, path string) error {
	var buf []byte
	err := d.run(ctx, d.lookupTimeout, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(c)
		return err
	}))
	if err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("writing screenshot: %w", err)
	}
	return nil
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := d.run(ctx, d.lookupTimeout, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	return u, nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, d.navTimeout, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Close shuts down the tab and the browser.
func (d *ChromeDriver) Close() error {
	d.cancelTab()
	d.cancelAlloc()
	return nil
}

// chromeElement re-queries its selector for every action.
type chromeElement struct {
	driver   *ChromeDriver
	strategy schemas.Strategy
	selector string
	sel      string
	by       chromedp.QueryOption
}

func (e *chromeElement) do(ctx context.Context, action chromedp.Action) error {
	if err := e.driver.run(ctx, e.driver.lookupTimeout, action); err != nil {
		return classify(e.strategy, e.selector, err, nil)
	}
	return nil
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.do(ctx, chromedp.Click(e.sel, e.by, chromedp.NodeVisible))
}

func (e *chromeElement) Clear(ctx context.Context) error {
	return e.do(ctx, chromedp.Clear(e.sel, e.by))
}

func (e *chromeElement) SendKeys(ctx context.Context, text string) error {
	return e.do(ctx, chromedp.SendKeys(e.sel, text, e.by, chromedp.NodeVisible))
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.do(ctx, chromedp.Text(e.sel, &text, e.by, chromedp.NodeVisible)); err != nil {
		return "", err
	}
	return text, nil
}
