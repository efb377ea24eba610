package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/audit"
	"github.com/xkilldash9x/selfheal/internal/browser"
	"github.com/xkilldash9x/selfheal/internal/mocks"
)

var submitDef = schemas.LocatorDefinition{Name: "submit", Strategy: schemas.StrategyCSS, Value: "#submit-btn"}

func lookupErr() error {
	return &browser.LookupError{Strategy: schemas.StrategyCSS, Selector: "#submit-btn", Kind: browser.ErrElementNotFound}
}

func TestArtifactStem(t *testing.T) {
	assert.Equal(t, "click__login_button", ArtifactStem(schemas.ActionClick, "login_button"))
	assert.Equal(t, "send_keys__search_box_q_", ArtifactStem(schemas.ActionSendKeys, "search box/q?"))
	assert.Len(t, ArtifactStem(schemas.ActionGetText, strings.Repeat("x", 200)), 80)
}

func TestCandidatesPath(t *testing.T) {
	assert.Equal(t, "/r/self_healing/click__a_1_candidates.json", CandidatesPath("/r/self_healing/click__a_1_context.json"))
	assert.Equal(t, "/r/ctx_candidates.json", CandidatesPath("/r/ctx.json"))
}

func TestNewRunDir(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	dir, err := NewRunDir(base, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "2026-10-18_09-30-00"), dir)
	assert.DirExists(t, filepath.Join(dir, ScreenshotDir))
	assert.DirExists(t, filepath.Join(dir, audit.Dir))
}

func TestCapture_AllArtifacts(t *testing.T) {
	ctx := context.Background()
	runDir := t.TempDir()
	driver := new(mocks.MockDriver)
	driver.On("CurrentURL", ctx).Return("http://localhost/form", nil)
	driver.On("PageSource", ctx).Return("<button data-testid='submit-form'>", nil)
	driver.On("SaveScreenshot", ctx, mock.MatchedBy(func(p string) bool {
		return strings.HasSuffix(p, ".png") && strings.Contains(p, ScreenshotDir)
	})).Return(nil)

	r := NewRecorder(runDir, driver, zaptest.NewLogger(t))
	r.now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 1, 250*int(time.Millisecond), time.UTC) }

	f := r.Capture(ctx, schemas.ActionClick, submitDef, lookupErr())

	assert.Equal(t, "<button data-testid='submit-form'>", f.DOM)
	assert.Equal(t, "http://localhost/form", f.Context.URL)
	assert.Equal(t, "NoSuchElement", f.Context.ExceptionType)
	assert.Equal(t, submitDef.Ref(), f.Context.Locator)
	assert.Equal(t, filepath.Join(runDir, audit.Dir, "click__submit_20261018_093001_250_context.json"), f.ContextPath)
	assert.FileExists(t, f.Context.DOMSnapshotPath)
	assert.NotEmpty(t, f.Context.ScreenshotPath)

	stored, err := ReadContext(f.ContextPath)
	require.NoError(t, err)
	assert.Equal(t, f.Context, stored)

	dom, err := ReadDOM(stored)
	require.NoError(t, err)
	assert.Equal(t, f.DOM, dom)
}

func TestCapture_DegradesOnFailures(t *testing.T) {
	ctx := context.Background()
	driver := new(mocks.MockDriver)
	driver.On("CurrentURL", ctx).Return("", errors.New("target closed"))
	driver.On("PageSource", ctx).Return("", errors.New("target closed"))
	driver.On("SaveScreenshot", ctx, mock.Anything).Return(errors.New("target closed"))

	f := NewRecorder(t.TempDir(), driver, zaptest.NewLogger(t)).Capture(ctx, schemas.ActionGetText, submitDef, lookupErr())

	assert.Empty(t, f.DOM)
	assert.Empty(t, f.Context.DOMSnapshotPath)
	assert.Empty(t, f.Context.ScreenshotPath)
	assert.NotEmpty(t, f.ContextPath, "the context file is still written")

	_, err := ReadDOM(f.Context)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCandidatesFileRoundTrip(t *testing.T) {
	fc := schemas.FailureContext{URL: "http://x", Action: schemas.ActionClick, Locator: submitDef.Ref()}
	path := filepath.Join(t.TempDir(), "a_candidates.json")

	file := NewCandidatesFile(fc, filepath.Join("artifacts", "a_context.json"), SourceNoDOM, 0.8, true, false, nil)
	require.NoError(t, WriteCandidates(path, file))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"candidates": []`)

	got, err := ReadCandidates(path)
	require.NoError(t, err)
	assert.Equal(t, SourceNoDOM, got.Source)
	assert.Equal(t, "a_context.json", got.SourceContext)
	assert.True(t, got.HumanRequired)
	assert.Empty(t, got.Candidates)
}
