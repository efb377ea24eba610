// File: internal/audit/log.go
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/fileio"
)

const (
	// Dir holds healing artifacts inside a run directory.
	Dir = "self_healing"
	// ReportFile is the healing report name inside Dir.
	ReportFile = "healing_report.json"
)

// ReportPath returns the healing report location for a run directory.
func ReportPath(runDir string) string {
	return filepath.Join(runDir, Dir, ReportFile)
}

// Log is the append-only healing report of one run directory.
//
// The file is rewritten whole on every append. Log assumes it is the only
// writer for its run directory; concurrent processes appending to the same
// report will lose entries. It does no locking.
type Log struct {
	path    string
	entries []schemas.AuditEntry
	last    time.Time
	now     func() time.Time
	logger  *zap.Logger
}

// Open loads the existing report of runDir. A missing report starts empty; so
// does a corrupt one, which is logged and overwritten on the next append.
func Open(runDir string, logger *zap.Logger) *Log {
	l := &Log{
		path:   ReportPath(runDir),
		now:    time.Now,
		logger: logger.Named("audit"),
	}

	entries, err := Read(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		l.logger.Warn("Healing report unreadable; starting a new one", zap.String("path", l.path), zap.Error(err))
	default:
		l.entries = entries
		for _, e := range entries {
			if e.Timestamp.After(l.last) {
				l.last = e.Timestamp
			}
		}
	}
	return l
}

// Read decodes a healing report file.
func Read(path string) ([]schemas.AuditEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []schemas.AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding healing report %s: %w", path, err)
	}
	return entries, nil
}

func (l *Log) Path() string { return l.path }

// Entries returns a copy of the entries in append order.
func (l *Log) Entries() []schemas.AuditEntry {
	out := make([]schemas.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Append records attempt with the next sequence number and a timestamp
// strictly after every earlier entry, then atomically rewrites the report.
func (l *Log) Append(attempt *schemas.HealingAttempt) (schemas.AuditEntry, error) {
	entry := schemas.NewAuditEntry(attempt)
	entry.Sequence = len(l.entries) + 1
	if n := len(l.entries); n > 0 && l.entries[n-1].Sequence >= entry.Sequence {
		entry.Sequence = l.entries[n-1].Sequence + 1
	}

	ts := l.now().UTC()
	if !ts.After(l.last) {
		ts = l.last.Add(time.Microsecond)
	}
	entry.Timestamp = ts

	next := append(l.Entries(), entry)
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return entry, fmt.Errorf("encoding healing report: %w", err)
	}
	if err := fileio.WriteAtomic(l.path, data, 0o644); err != nil {
		return entry, fmt.Errorf("writing healing report: %w", err)
	}

	l.entries = next
	l.last = ts
	l.logger.Debug("Healing attempt recorded",
		zap.Int("sequence", entry.Sequence),
		zap.String("attempt_id", entry.AttemptID),
		zap.String("status", string(entry.Status)))
	return entry, nil
}
