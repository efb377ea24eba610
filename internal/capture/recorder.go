// File: internal/capture/recorder.go
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/audit"
	"github.com/xkilldash9x/selfheal/internal/browser"
	"github.com/xkilldash9x/selfheal/internal/fileio"
)

const (
	// ScreenshotDir holds failure screenshots inside a run directory.
	ScreenshotDir = "screenshots"
	// SourceNoDOM marks candidates files written without a DOM snapshot.
	SourceNoDOM = "no_dom"

	contextSuffix    = "_context.json"
	candidatesSuffix = "_candidates.json"
	maxStemLength    = 80
	runDirLayout     = "2006-01-02_15-04-05"
)

var unsafeStemChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// ArtifactStem names the artifacts of one failure: "<action>__<locator>",
// with unsafe characters replaced and the result capped at 80 characters.
func ArtifactStem(action schemas.ActionKind, locator string) string {
	stem := unsafeStemChars.ReplaceAllString(string(action)+"__"+locator, "_")
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}
	return stem
}

// CandidatesPath derives the candidates file path from a context file path.
func CandidatesPath(contextPath string) string {
	if strings.HasSuffix(contextPath, contextSuffix) {
		return strings.TrimSuffix(contextPath, contextSuffix) + candidatesSuffix
	}
	return strings.TrimSuffix(contextPath, filepath.Ext(contextPath)) + candidatesSuffix
}

// NewRunDir creates base/<timestamp> with its artifact subdirectories and
// returns its path. A leading ~ in base is expanded.
func NewRunDir(base string, now time.Time) (string, error) {
	expanded, err := homedir.Expand(base)
	if err != nil {
		return "", fmt.Errorf("expanding report dir %q: %w", base, err)
	}
	dir := filepath.Join(expanded, now.Format(runDirLayout))
	for _, sub := range []string{ScreenshotDir, audit.Dir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating run directory: %w", err)
		}
	}
	return dir, nil
}

// Failure is what a Recorder captured for one lookup failure.
type Failure struct {
	Context schemas.FailureContext
	// ContextPath is empty when the context file could not be written.
	ContextPath string
	// DOM is the page source read at capture time, empty when unavailable.
	DOM string
}

// Recorder captures failure artifacts into a run directory. Each artifact is
// best effort: a failed screenshot or write is logged and the rest proceeds.
type Recorder struct {
	runDir string
	driver browser.Driver
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(runDir string, driver browser.Driver, logger *zap.Logger) *Recorder {
	return &Recorder{
		runDir: runDir,
		driver: driver,
		logger: logger.Named("capture"),
		now:    time.Now,
	}
}

// Capture records the page state after lookupErr hit def during action.
func (r *Recorder) Capture(ctx context.Context, action schemas.ActionKind, def schemas.LocatorDefinition, lookupErr error) Failure {
	ts := r.now()
	base := fmt.Sprintf("%s_%s_%03d", ArtifactStem(action, def.Name), ts.Format("20060102_150405"), ts.Nanosecond()/int(time.Millisecond))
	healDir := filepath.Join(r.runDir, audit.Dir)

	fc := schemas.FailureContext{
		Timestamp: ts.UTC(),
		Action:    action,
		Locator:   def.Ref(),
	}
	if lookupErr != nil {
		fc.ExceptionType = browser.ExceptionType(lookupErr)
		fc.ExceptionMessage = lookupErr.Error()
	}

	if url, err := r.driver.CurrentURL(ctx); err != nil {
		r.logger.Warn("Could not read current URL", zap.Error(err))
	} else {
		fc.URL = url
	}

	var failure Failure
	if dom, err := r.driver.PageSource(ctx); err != nil {
		r.logger.Warn("Could not read page source", zap.Error(err))
	} else {
		failure.DOM = dom
		path := filepath.Join(healDir, base+".html")
		if err := fileio.WriteAtomic(path, []byte(dom), 0o644); err != nil {
			r.logger.Warn("Could not save DOM snapshot", zap.String("path", path), zap.Error(err))
		} else {
			fc.DOMSnapshotPath = path
		}
	}

	shot := filepath.Join(r.runDir, ScreenshotDir, base+".png")
	if err := os.MkdirAll(filepath.Dir(shot), 0o755); err != nil {
		r.logger.Warn("Could not create screenshot directory", zap.Error(err))
	} else if err := r.driver.SaveScreenshot(ctx, shot); err != nil {
		r.logger.Warn("Could not save screenshot", zap.String("path", shot), zap.Error(err))
	} else {
		fc.ScreenshotPath = shot
	}

	failure.Context = fc
	path := filepath.Join(healDir, base+contextSuffix)
	if err := WriteContext(path, fc); err != nil {
		r.logger.Warn("Could not write failure context", zap.String("path", path), zap.Error(err))
	} else {
		failure.ContextPath = path
	}

	r.logger.Info("Captured lookup failure",
		zap.String("locator", def.Name),
		zap.String("action", string(action)),
		zap.String("exception_type", fc.ExceptionType),
		zap.Bool("dom", fc.DOMSnapshotPath != ""),
		zap.Bool("screenshot", fc.ScreenshotPath != ""))
	return failure
}

// WriteContext writes a failure-context file.
func WriteContext(path string, fc schemas.FailureContext) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding failure context: %w", err)
	}
	return fileio.WriteAtomic(path, data, 0o644)
}

// ReadContext loads a failure-context file.
func ReadContext(path string) (schemas.FailureContext, error) {
	var fc schemas.FailureContext
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("reading failure context: %w", err)
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("decoding failure context %s: %w", path, err)
	}
	return fc, nil
}

// ReadDOM loads the snapshot a context points at.
func ReadDOM(fc schemas.FailureContext) (string, error) {
	if fc.DOMSnapshotPath == "" {
		return "", os.ErrNotExist
	}
	data, err := os.ReadFile(fc.DOMSnapshotPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NewCandidatesFile assembles the candidates file for a failure. The file
// records only the context file's base name; it sits in the same directory.
func NewCandidatesFile(fc schemas.FailureContext, contextPath, source string, threshold float64, humanRequired, fallbackUsed bool, cands []schemas.Candidate) schemas.CandidatesFile {
	if cands == nil {
		cands = []schemas.Candidate{}
	}
	return schemas.CandidatesFile{
		Source:              source,
		SourceContext:       filepath.Base(contextPath),
		URL:                 fc.URL,
		Action:              fc.Action,
		LocatorBefore:       fc.Locator,
		ConfidenceThreshold: threshold,
		HumanRequired:       humanRequired,
		FallbackUsed:        fallbackUsed,
		Candidates:          cands,
	}
}

// WriteCandidates writes a candidates file.
func WriteCandidates(path string, file schemas.CandidatesFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding candidates: %w", err)
	}
	return fileio.WriteAtomic(path, data, 0o644)
}

// ReadCandidates loads a candidates file.
func ReadCandidates(path string) (schemas.CandidatesFile, error) {
	var file schemas.CandidatesFile
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("reading candidates file: %w", err)
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("decoding candidates file %s: %w", path, err)
	}
	return file, nil
}
