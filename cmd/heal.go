// File: cmd/heal.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/browser"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/observability"
	"github.com/xkilldash9x/selfheal/internal/page"
	"github.com/xkilldash9x/selfheal/internal/probe"
)

type healOptions struct {
	URL     string
	Locator string
	Action  string
	Text    string
}

func (o healOptions) validate() error {
	if o.URL == "" {
		return errors.New("--url is required")
	}
	if o.Locator == "" {
		return errors.New("--locator is required")
	}
	if !schemas.ActionKind(o.Action).Valid() {
		return fmt.Errorf("--action must be one of click, send_keys, get_text; got %q", o.Action)
	}
	return nil
}

// newHealCmd creates the heal command. A nil factory uses the configured
// browser driver.
func newHealCmd(newDriver driverFactory) *cobra.Command {
	if newDriver == nil {
		newDriver = browser.NewDriver
	}
	var opts healOptions

	cmd := &cobra.Command{
		Use:   "heal",
		Short: "Perform one action on a named locator, healing it if the lookup fails",
		Long: `Opens the page in the configured browser and performs the action on the named
locator. When the element cannot be found, the failure is captured, replacement
candidates are derived and probed, and the outcome is appended to the healing report.`,
		Example: `  selfheal heal --url https://example.test/login --locator login_button --action click
  selfheal heal --url https://example.test/login --locator username_field --action send_keys --text alice --mode manual`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHeal(ctx, observability.GetLogger(), cfg, opts, newDriver, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "Page to open before acting (required)")
	cmd.Flags().StringVar(&opts.Locator, "locator", "", "Name of the locator definition (required)")
	cmd.Flags().StringVar(&opts.Action, "action", string(schemas.ActionClick), "Action to perform: click, send_keys or get_text")
	cmd.Flags().StringVar(&opts.Text, "text", "", "Text to type for send_keys")
	cmd.Flags().String("mode", "", "Override self_healing.mode (auto or manual)")
	cmd.Flags().String("analyzer", "", "Override self_healing.analyzer (heuristic or workflow)")
	cmd.Flags().String("driver", "", "Override browser.driver (chromedp or rod)")
	cmd.Flags().Bool("headless", true, "Override browser.headless")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("locator")
	return cmd
}

// runHeal contains the testable logic of the heal command.
func runHeal(ctx context.Context, logger *zap.Logger, cfg *config.Config, opts healOptions, newDriver driverFactory, out io.Writer) error {
	if err := opts.validate(); err != nil {
		return err
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	if _, err := registry.Lookup(opts.Locator); err != nil {
		return err
	}

	driver, err := newDriver(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("Error closing browser", zap.Error(err))
		}
	}()

	var healer page.Healer
	runDir := ""
	if cfg.SelfHealing.Enabled {
		src, cleanup, err := newSource(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		runDir, err = newRunDir(cfg)
		if err != nil {
			return err
		}
		healer = buildHealer(cfg, driver, src, runDir, logger)
	} else {
		logger.Info("Self-healing disabled; lookup failures are returned as-is")
	}

	if err := driver.Navigate(ctx, opts.URL); err != nil {
		return fmt.Errorf("failed to open %s: %w", opts.URL, err)
	}

	p := page.New(driver, registry, healer, logger)
	res, err := p.Do(ctx, opts.Locator, probe.Action{Kind: schemas.ActionKind(opts.Action), Text: opts.Text})
	printHealResult(out, opts, res, runDir)
	if err != nil {
		return fmt.Errorf("%s on %q failed: %w", opts.Action, opts.Locator, err)
	}
	return nil
}

func printHealResult(out io.Writer, opts healOptions, res page.Result, runDir string) {
	if a := res.Attempt; a != nil {
		fmt.Fprintf(out, "healing attempt %s: %s (%d candidates, %d probes)\n", a.ID, a.Status, len(a.Candidates), len(a.Probes))
		if a.Selected != nil && a.Healed {
			fmt.Fprintf(out, "  selected: (%s, %s) confidence %.3f\n", a.Selected.Strategy, a.Selected.Selector, a.Selected.Confidence)
		}
		if a.AutoFix.Status != "" && a.AutoFix.Status != schemas.AutoFixNotAttempted {
			fmt.Fprintf(out, "  auto-fix: %s %s\n", a.AutoFix.Status, a.AutoFix.File)
		}
		if runDir != "" {
			fmt.Fprintf(out, "  artifacts: %s\n", runDir)
		}
	}
	if opts.Action == string(schemas.ActionGetText) && (res.Attempt == nil || res.Healed) {
		fmt.Fprintln(out, res.Value)
	}
}
