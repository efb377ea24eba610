// internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

// TextReporter renders one aligned row per entry followed by a summary line.
type TextReporter struct {
	writer  io.WriteCloser
	tw      *tabwriter.Writer
	summary Summary
	header  bool
}

func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{
		writer: writer,
		tw:     tabwriter.NewWriter(writer, 0, 4, 2, ' ', 0),
	}
}

func (r *TextReporter) Write(entry *schemas.AuditEntry) error {
	if !r.header {
		r.header = true
		if _, err := fmt.Fprintln(r.tw, "SEQ\tTIME\tSTATUS\tACTION\tLOCATOR\tBEFORE\tSELECTED\tPROBES\tAUTO-FIX"); err != nil {
			return err
		}
	}
	r.summary.Add(entry)

	selected := "-"
	if entry.Selected != nil {
		selected = fmt.Sprintf("(%s, %s) %.2f", entry.Selected.Strategy, entry.Selected.Selector, entry.Selected.Confidence)
	}
	fix := string(schemas.AutoFixNotAttempted)
	if entry.Audit != nil {
		fix = string(entry.Audit.Status)
		if entry.Audit.Method != "" {
			fix += "/" + string(entry.Audit.Method)
		}
	}

	_, err := fmt.Fprintf(r.tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		entry.Sequence,
		entry.Timestamp.Format(time.RFC3339),
		entry.Status,
		entry.Action,
		entry.LocatorBefore.Name,
		locatorText(entry.LocatorBefore),
		selected,
		strconv.Itoa(entry.CandidatesTried),
		fix)
	return err
}

func (r *TextReporter) Close() error {
	flushErr := r.tw.Flush()
	var sumErr error
	if flushErr == nil {
		if r.header {
			_, sumErr = fmt.Fprintln(r.writer)
		}
		if sumErr == nil {
			_, sumErr = fmt.Fprintln(r.writer, r.summary.String())
		}
	}
	closeErr := r.writer.Close()

	switch {
	case flushErr != nil:
		return fmt.Errorf("failed to write text report: %w", flushErr)
	case sumErr != nil:
		return fmt.Errorf("failed to write text report: %w", sumErr)
	case closeErr != nil:
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
