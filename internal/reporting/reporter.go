// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

// Supported output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// Reporter renders healing report entries to an output.
type Reporter interface {
	// Write adds one audit entry to the report.
	Write(entry *schemas.AuditEntry) error
	// Close finalizes the report and closes the underlying output.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	switch format {
	case FormatText, FormatJSON, FormatSARIF:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case FormatSARIF:
		return NewSARIFReporter(writer, toolVersion), nil
	case FormatJSON:
		return NewJSONReporter(writer), nil
	default:
		return NewTextReporter(writer), nil
	}
}

// Summary counts entries by outcome.
type Summary struct {
	Total          int `json:"total"`
	Healed         int `json:"healed"`
	ManualRequired int `json:"manual_required"`
	Failed         int `json:"failed"`
	AutoFixed      int `json:"auto_fixed"`
	AutoFixFailed  int `json:"auto_fix_failed"`
}

// Add counts one entry.
func (s *Summary) Add(e *schemas.AuditEntry) {
	s.Total++
	switch e.Status {
	case schemas.StatusHealed:
		s.Healed++
	case schemas.StatusManualRequired:
		s.ManualRequired++
	case schemas.StatusFailed:
		s.Failed++
	}
	if e.Audit == nil {
		return
	}
	switch e.Audit.Status {
	case schemas.AutoFixSuccess:
		s.AutoFixed++
	case schemas.AutoFixFailed:
		s.AutoFixFailed++
	}
}

// Summarize counts a whole report.
func Summarize(entries []schemas.AuditEntry) Summary {
	var s Summary
	for i := range entries {
		s.Add(&entries[i])
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d attempts: %d healed, %d manual_required, %d failed (auto-fixed %d, auto-fix failed %d)",
		s.Total, s.Healed, s.ManualRequired, s.Failed, s.AutoFixed, s.AutoFixFailed)
}

func locatorText(ref schemas.LocatorRef) string {
	return fmt.Sprintf("(%s, %s)", ref.Strategy, ref.Value)
}
