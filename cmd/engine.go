// File: cmd/engine.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/internal/audit"
	"github.com/xkilldash9x/selfheal/internal/autofix"
	"github.com/xkilldash9x/selfheal/internal/browser"
	"github.com/xkilldash9x/selfheal/internal/capture"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/healing"
	"github.com/xkilldash9x/selfheal/internal/llmclient"
	"github.com/xkilldash9x/selfheal/internal/locators"
	"github.com/xkilldash9x/selfheal/internal/probe"
	"github.com/xkilldash9x/selfheal/internal/suggest"
)

// driverFactory creates the browser driver; tests substitute a mock.
type driverFactory func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, error)

// newSource builds the configured suggestion source. The returned cleanup
// releases the LLM client when one was created; it is never nil.
func newSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (suggest.Source, func(), error) {
	cleanup := func() {}
	var svc suggest.Service
	if cfg.LLM.Enabled {
		client, err := llmclient.NewClient(ctx, cfg.LLM, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		cleanup = func() {
			if err := client.Close(); err != nil {
				logger.Warn("Error closing LLM client", zap.Error(err))
			}
		}
		svc = suggest.NewLLMService(client, logger)
	}

	src, err := suggest.NewSource(cfg.SelfHealing, svc, logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return src, cleanup, nil
}

// loadRegistry loads every configured locator definition file.
func loadRegistry(cfg *config.Config) (*locators.Registry, error) {
	defs, err := locators.Load(cfg.Locators.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load locator definitions: %w", err)
	}
	return locators.NewRegistry(defs)
}

// buildHealer wires the pipeline for one run directory.
func buildHealer(cfg *config.Config, driver browser.Driver, src suggest.Source, runDir string, logger *zap.Logger) *healing.Healer {
	return healing.New(cfg.SelfHealing, healing.Deps{
		Recorder:  capture.NewRecorder(runDir, driver, logger),
		Source:    src,
		Prober:    probe.NewProber(driver, cfg.SelfHealing.MaxAttempts, logger),
		Persister: autofix.NewPersister(cfg.SelfHealing.Mode, cfg.Autofix, logger),
		Log:       audit.Open(runDir, logger),
	}, logger)
}

// newRunDir creates the timestamped artifact directory under report_dir.
func newRunDir(cfg *config.Config) (string, error) {
	return capture.NewRunDir(cfg.SelfHealing.ReportDir, time.Now())
}
