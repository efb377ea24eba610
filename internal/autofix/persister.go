// File: internal/autofix/persister.go
package autofix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/fileio"
	"github.com/xkilldash9x/selfheal/internal/locators"
)

var (
	// ErrNoStructuredMatch means the structured path could not find the
	// exact original entry; the literal fallback is tried next.
	ErrNoStructuredMatch = errors.New("structured rewrite could not locate the original entry")
	ErrLiteralNotFound   = errors.New("original value not found in locator file")
	ErrNoSourceFile      = errors.New("locator definition has no source file")
	// ErrUnverified means the rewritten content no longer yields the new locator.
	ErrUnverified = errors.New("rewritten file does not contain the new locator")
)

// Rewriter edits one definition inside a store's raw bytes.
type Rewriter interface {
	// Rewrite replaces the named entry's (strategy, value). It returns an
	// error wrapping ErrNoStructuredMatch when the entry or its original
	// value cannot be located exactly.
	Rewrite(data []byte, name string, before, after schemas.LocatorRef) ([]byte, error)
	Parse(data []byte) ([]schemas.LocatorDefinition, error)
	// EntryOffset returns the byte offset where the named entry begins, so
	// the literal fallback never matches text belonging to an earlier entry.
	EntryOffset(data []byte, name string) (int, error)
}

// RewriterFor returns the rewriter for a store format.
func RewriterFor(format schemas.SourceFormat) (Rewriter, error) {
	switch format {
	case schemas.FormatYAML:
		return YAMLRewriter{}, nil
	case schemas.FormatXML:
		return XMLRewriter{}, nil
	}
	return nil, fmt.Errorf("%w: %q", locators.ErrUnsupportedFormat, format)
}

// Persister writes a locally validated selector back into the definition
// store. In manual mode it never touches the file.
type Persister struct {
	mode   config.HealingMode
	backup bool
	logger *zap.Logger
}

func NewPersister(mode config.HealingMode, cfg config.AutofixConfig, logger *zap.Logger) *Persister {
	return &Persister{
		mode:   mode,
		backup: cfg.Backup,
		logger: logger.Named("autofix"),
	}
}

// Apply persists winner as the new (strategy, value) of def. The returned
// audit is always populated; a non-nil error accompanies Status failed.
func (p *Persister) Apply(ctx context.Context, def schemas.LocatorDefinition, winner schemas.Candidate) (schemas.AutoFixAudit, error) {
	audit := schemas.AutoFixAudit{
		File:          def.Source.File,
		LocatorBefore: def.Ref(),
		LocatorAfter:  schemas.LocatorRef{Name: def.Name, Strategy: winner.Strategy, Value: winner.Selector},
	}

	if p.mode == config.ModeManual {
		audit.Status = schemas.AutoFixManual
		p.logger.Info("Manual mode; leaving locator definition for the operator",
			zap.String("locator", def.Name),
			zap.String("suggested", winner.Selector))
		return audit, nil
	}

	fail := func(err error) (schemas.AutoFixAudit, error) {
		audit.Status = schemas.AutoFixFailed
		audit.Error = err.Error()
		p.logger.Error("Auto-fix failed", zap.String("locator", def.Name), zap.String("file", def.Source.File), zap.Error(err))
		return audit, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if def.Source.File == "" {
		return fail(fmt.Errorf("%w: %q", ErrNoSourceFile, def.Name))
	}

	format := def.Source.Format
	if format == "" {
		f, err := locators.FormatOf(def.Source.File)
		if err != nil {
			return fail(err)
		}
		format = f
	}
	rw, err := RewriterFor(format)
	if err != nil {
		return fail(err)
	}

	data, err := os.ReadFile(def.Source.File)
	if err != nil {
		return fail(fmt.Errorf("reading locator file: %w", err))
	}
	audit.BeforeHash = fileio.Fingerprint(data)

	out, method, err := rewrite(rw, data, def.Name, audit.LocatorBefore, audit.LocatorAfter)
	if err != nil {
		return fail(err)
	}
	audit.Method = method
	if method == schemas.FixLiteralFallback {
		p.logger.Warn("Structured rewrite unavailable; used literal replacement",
			zap.String("locator", def.Name),
			zap.String("file", def.Source.File))
	}

	if p.backup {
		if err := fileio.WriteAtomic(def.Source.File+".bak", data, 0o644); err != nil {
			return fail(fmt.Errorf("writing backup: %w", err))
		}
	}
	if err := fileio.WriteAtomic(def.Source.File, out, 0o644); err != nil {
		return fail(fmt.Errorf("writing locator file: %w", err))
	}

	audit.AfterHash = fileio.Fingerprint(out)
	audit.Status = schemas.AutoFixSuccess
	p.logger.Info("Locator definition updated",
		zap.String("locator", def.Name),
		zap.String("file", def.Source.File),
		zap.String("method", string(method)),
		zap.String("before", def.Value),
		zap.String("after", winner.Selector))
	return audit, nil
}

// rewrite tries the structured path and falls back to literal replacement
// only when the structured path cannot find the original entry.
func rewrite(rw Rewriter, data []byte, name string, before, after schemas.LocatorRef) ([]byte, schemas.FixMethod, error) {
	out, err := rw.Rewrite(data, name, before, after)
	if err == nil {
		return out, schemas.FixStructured, nil
	}
	if !errors.Is(err, ErrNoStructuredMatch) {
		return nil, "", err
	}

	from, oerr := rw.EntryOffset(data, name)
	if oerr != nil {
		return nil, "", fmt.Errorf("%v; literal fallback: %w", err, oerr)
	}
	out, lerr := literalReplace(data, from, before, after)
	if lerr != nil {
		return nil, "", fmt.Errorf("%v; literal fallback: %w", err, lerr)
	}
	if verr := verifyEntry(rw, out, name, after); verr != nil {
		return nil, "", fmt.Errorf("%v; literal fallback: %w", err, verr)
	}
	return out, schemas.FixLiteralFallback, nil
}

// literalReplace swaps the first occurrence of the original value at or
// after offset from. When the strategy changes, a strategy token on the same
// line is updated too; without one the replacement is refused.
func literalReplace(data []byte, from int, before, after schemas.LocatorRef) ([]byte, error) {
	if from < 0 || from > len(data) {
		return nil, fmt.Errorf("%w: entry offset %d out of range", ErrLiteralNotFound, from)
	}
	idx := bytes.Index(data[from:], []byte(before.Value))
	if before.Value == "" || idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrLiteralNotFound, before.Value)
	}
	idx += from

	out := make([]byte, 0, len(data)+len(after.Value))
	out = append(out, data[:idx]...)
	out = append(out, after.Value...)
	out = append(out, data[idx+len(before.Value):]...)

	if before.Strategy == after.Strategy {
		return out, nil
	}
	lineStart := bytes.LastIndexByte(out[:idx], '\n') + 1
	lineEnd := len(out)
	if nl := bytes.IndexByte(out[idx:], '\n'); nl >= 0 {
		lineEnd = idx + nl
	}
	re := regexp.MustCompile(`(strategy\s*[:=]\s*['"]?)` + regexp.QuoteMeta(string(before.Strategy)) + `\b`)
	line := out[lineStart:lineEnd]
	loc := re.FindSubmatchIndex(line)
	if loc == nil {
		return nil, fmt.Errorf("%w: strategy %s not on the value's line", ErrLiteralNotFound, before.Strategy)
	}
	patched := make([]byte, 0, len(out))
	patched = append(patched, out[:lineStart+loc[3]]...)
	patched = append(patched, after.Strategy...)
	patched = append(patched, out[lineStart+loc[1]:]...)
	return patched, nil
}

// verifyEntry checks that the named entry now holds after.
func verifyEntry(rw Rewriter, data []byte, name string, after schemas.LocatorRef) error {
	defs, err := rw.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnverified, err)
	}
	for _, d := range defs {
		if d.Name == name {
			if d.Strategy == after.Strategy && d.Value == after.Value {
				return nil
			}
			return fmt.Errorf("%w: %q holds (%s, %s)", ErrUnverified, name, d.Strategy, d.Value)
		}
	}
	return fmt.Errorf("%w: %q missing", ErrUnverified, name)
}
