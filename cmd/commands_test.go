// File: cmd/commands_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/audit"
	"github.com/xkilldash9x/selfheal/internal/capture"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/locators"
	"github.com/xkilldash9x/selfheal/internal/reporting"
	"github.com/xkilldash9x/selfheal/internal/suggest"
)

// writeFailure stores a failure context, with a DOM snapshot when dom is set.
func writeFailure(t *testing.T, dir, stem, dom string) string {
	t.Helper()
	fc := schemas.FailureContext{
		Timestamp:        time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		URL:              loginURL,
		Action:           schemas.ActionClick,
		Locator:          schemas.LocatorRef{Name: "login_button", Strategy: schemas.StrategyCSS, Value: "#login-btn"},
		ExceptionType:    "NoSuchElement",
		ExceptionMessage: "element not found: (css, #login-btn)",
	}
	if dom != "" {
		fc.DOMSnapshotPath = filepath.Join(dir, stem+".html")
		require.NoError(t, os.WriteFile(fc.DOMSnapshotPath, []byte(dom), 0o644))
	}
	path := filepath.Join(dir, stem+"_context.json")
	require.NoError(t, capture.WriteContext(path, fc))
	return path
}

func heuristicConfig() config.SelfHealingConfig {
	cfg := config.NewDefaultConfig().SelfHealing
	cfg.Analyzer = config.AnalyzerHeuristic
	return cfg
}

func TestRunAnalyze(t *testing.T) {
	dir := t.TempDir()
	withDOM := writeFailure(t, dir, "click__login_button_a", loginDOM)
	noDOM := writeFailure(t, dir, "click__login_button_b", "")
	missing := filepath.Join(dir, "gone_context.json")

	cfg := heuristicConfig()
	logger := zaptest.NewLogger(t)
	src := suggest.NewHeuristicSource(cfg)

	results, err := runAnalyze(context.Background(), logger, cfg, src, []string{withDOM, noDOM, missing}, 2)
	require.Error(t, err, "the missing file is reported")
	assert.Contains(t, err.Error(), missing)
	require.Len(t, results, 3)

	t.Run("with DOM", func(t *testing.T) {
		r := results[0]
		require.NoError(t, r.Err)
		assert.Equal(t, capture.CandidatesPath(withDOM), r.CandidatesPath)
		file, err := capture.ReadCandidates(r.CandidatesPath)
		require.NoError(t, err)
		assert.Equal(t, suggest.SourceHeuristic, file.Source)
		assert.Equal(t, filepath.Base(withDOM), file.SourceContext)
		assert.Equal(t, "login_button", file.LocatorBefore.Name)
		require.NotEmpty(t, file.Candidates)
		assert.Contains(t, file.Candidates[0].Selector, "data-testid")
	})

	t.Run("without DOM", func(t *testing.T) {
		r := results[1]
		require.NoError(t, r.Err)
		file, err := capture.ReadCandidates(r.CandidatesPath)
		require.NoError(t, err)
		assert.Equal(t, capture.SourceNoDOM, file.Source)
		assert.True(t, file.HumanRequired)
		assert.Empty(t, file.Candidates)
	})

	t.Run("printed summary", func(t *testing.T) {
		var out bytes.Buffer
		printAnalyses(&out, results)
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[1], "0 candidates, top none [human review]")
		assert.Contains(t, lines[2], "error:")
	})
}

func TestRunAnalyze_Cancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeFailure(t, dir, "click__login_button", loginDOM)
	cfg := config.NewDefaultConfig().SelfHealing

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The workflow source honors cancellation before generating anything.
	src, err := suggest.NewSource(cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = runAnalyze(ctx, zaptest.NewLogger(t), cfg, src, []string{path}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeCandidatesFor(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	fc := schemas.FailureContext{
		URL:     loginURL,
		Action:  schemas.ActionClick,
		Locator: schemas.LocatorRef{Name: "login_button", Strategy: schemas.StrategyCSS, Value: "#login-btn"},
	}
	file := capture.NewCandidatesFile(fc, filepath.Join(dir, "x_context.json"), suggest.SourceHeuristic, 0.8, false, false, []schemas.Candidate{
		{Selector: "button[data-testid='login']", Strategy: schemas.StrategyCSS, Confidence: 0.95},
		{Selector: "button.primary", Strategy: schemas.StrategyCSS, Confidence: 0.4},
	})
	path := capture.CandidatesPath(filepath.Join(dir, "x_context.json"))
	require.NoError(t, capture.WriteCandidates(path, file))
	return path
}

func TestRunApply(t *testing.T) {
	t.Run("auto mode rewrites the chosen candidate", func(t *testing.T) {
		cfg, store := newTestConfig(t)
		path := writeCandidatesFor(t)

		var out bytes.Buffer
		err := runApply(context.Background(), zaptest.NewLogger(t), cfg, applyOptions{CandidatesPath: path, Index: 1}, &out)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "login_button: (css, #login-btn) -> (css, button.primary) [success]")
		assert.Contains(t, out.String(), "file: "+store)

		defs, err := locators.LoadFile(store)
		require.NoError(t, err)
		reg, err := locators.NewRegistry(defs)
		require.NoError(t, err)
		def, err := reg.Lookup("login_button")
		require.NoError(t, err)
		assert.Equal(t, "button.primary", def.Value)
	})

	t.Run("manual mode only prints", func(t *testing.T) {
		cfg, store := newTestConfig(t)
		cfg.SelfHealing.Mode = config.ModeManual
		path := writeCandidatesFor(t)
		before, err := os.ReadFile(store)
		require.NoError(t, err)

		var out bytes.Buffer
		require.NoError(t, runApply(context.Background(), zaptest.NewLogger(t), cfg, applyOptions{CandidatesPath: path}, &out))
		assert.Contains(t, out.String(), "[manual]")

		after, err := os.ReadFile(store)
		require.NoError(t, err)
		assert.Equal(t, string(before), string(after))
	})

	t.Run("index out of range", func(t *testing.T) {
		cfg, _ := newTestConfig(t)
		path := writeCandidatesFor(t)
		err := runApply(context.Background(), zaptest.NewLogger(t), cfg, applyOptions{CandidatesPath: path, Index: 2}, new(bytes.Buffer))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "candidate index 2 out of range")
	})

	t.Run("explicit locator must exist", func(t *testing.T) {
		cfg, _ := newTestConfig(t)
		path := writeCandidatesFor(t)
		err := runApply(context.Background(), zaptest.NewLogger(t), cfg, applyOptions{CandidatesPath: path, Locator: "nope"}, new(bytes.Buffer))
		assert.ErrorIs(t, err, locators.ErrLocatorNotFound)
	})
}

// seedReport appends one attempt per status to a fresh run directory.
func seedReport(t *testing.T) string {
	t.Helper()
	runDir := t.TempDir()
	log := audit.Open(runDir, zaptest.NewLogger(t))
	sel := schemas.Candidate{Selector: "button[data-testid='login']", Strategy: schemas.StrategyCSS, Confidence: 0.95}
	attempts := []*schemas.HealingAttempt{
		{ID: "a1", Status: schemas.StatusHealed, Healed: true, Selected: &sel, AutoFix: schemas.AutoFixAudit{Status: schemas.AutoFixSuccess}},
		{ID: "a2", Status: schemas.StatusManualRequired, Healed: true, Selected: &sel, AutoFix: schemas.AutoFixAudit{Status: schemas.AutoFixManual}},
		{ID: "a3", Status: schemas.StatusFailed, HumanRequired: true},
	}
	for _, a := range attempts {
		a.Context = schemas.FailureContext{
			URL:     loginURL,
			Action:  schemas.ActionClick,
			Locator: schemas.LocatorRef{Name: "login_button", Strategy: schemas.StrategyCSS, Value: "#login-btn"},
		}
		_, err := log.Append(a)
		require.NoError(t, err)
	}
	return runDir
}

func TestRunReport(t *testing.T) {
	runDir := seedReport(t)
	logger := zaptest.NewLogger(t)

	t.Run("text", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "report.txt")
		require.NoError(t, runReport(context.Background(), logger, reportOptions{Target: runDir, OutputPath: out, Format: reporting.FormatText}))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), "3 attempts: 1 healed, 1 manual_required, 1 failed")
	})

	t.Run("json with status filter", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "report.json")
		opts := reportOptions{Target: audit.ReportPath(runDir), OutputPath: out, Format: reporting.FormatJSON, Status: "failed"}
		require.NoError(t, runReport(context.Background(), logger, opts))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		var doc reporting.JSONDocument
		require.NoError(t, json.Unmarshal(data, &doc))
		require.Len(t, doc.Entries, 1)
		assert.Equal(t, "a3", doc.Entries[0].AttemptID)
		assert.Equal(t, 1, doc.Summary.Failed)
	})

	t.Run("sarif", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "report.sarif")
		require.NoError(t, runReport(context.Background(), logger, reportOptions{Target: runDir, OutputPath: out, Format: reporting.FormatSARIF}))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), "SELFHEAL-MANUAL-REQUIRED")
	})

	t.Run("missing report", func(t *testing.T) {
		err := runReport(context.Background(), logger, reportOptions{Target: t.TempDir(), Format: reporting.FormatText})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no healing report in")
	})

	t.Run("unknown format", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "report.xml")
		err := runReport(context.Background(), logger, reportOptions{Target: runDir, OutputPath: out, Format: "xml"})
		assert.EqualError(t, err, "unsupported output format: xml")
		assert.NoFileExists(t, out)
	})
}

func TestReportCmd_JSONFlag(t *testing.T) {
	runDir := seedReport(t)
	out := filepath.Join(t.TempDir(), "r.json")
	path := createTempConfig(t, "logger:\n  level: error\n")

	_, err := executeCommand(t, "--config", path, "report", runDir, "--json", "-o", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc reporting.JSONDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 3, doc.Summary.Total)
}
