// internal/reporting/json_reporter.go
package reporting

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

// JSONDocument is the shape written by JSONReporter.
type JSONDocument struct {
	Summary Summary              `json:"summary"`
	Entries []schemas.AuditEntry `json:"entries"`
}

// JSONReporter buffers entries and writes one document on Close.
type JSONReporter struct {
	writer io.WriteCloser
	doc    JSONDocument
}

func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		doc:    JSONDocument{Entries: []schemas.AuditEntry{}},
	}
}

func (r *JSONReporter) Write(entry *schemas.AuditEntry) error {
	r.doc.Summary.Add(entry)
	r.doc.Entries = append(r.doc.Entries, *entry)
	return nil
}

func (r *JSONReporter) Close() error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.doc)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode JSON report: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
