package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

func attempt(id string, status schemas.HealingStatus) *schemas.HealingAttempt {
	sel := &schemas.Candidate{Selector: "button[data-testid='submit-form']", Strategy: schemas.StrategyCSS, Confidence: 0.97}
	return &schemas.HealingAttempt{
		ID: id,
		Context: schemas.FailureContext{
			URL:     "http://localhost/form",
			Action:  schemas.ActionClick,
			Locator: schemas.LocatorRef{Name: "submit", Strategy: schemas.StrategyCSS, Value: "#submit-btn"},
		},
		Source:     "heuristic",
		Candidates: []schemas.Candidate{*sel},
		Selected:   sel,
		Probes:     []schemas.ProbeRecord{{Selector: sel.Selector, Strategy: sel.Strategy, OK: true}},
		Healed:     status != schemas.StatusFailed,
		Status:     status,
		AutoFix:    schemas.AutoFixAudit{Status: schemas.AutoFixNotAttempted},
	}
}

func TestLog_AppendAndReopen(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir, zaptest.NewLogger(t))
	assert.Empty(t, l.Entries())

	first, err := l.Append(attempt("a1", schemas.StatusHealed))
	require.NoError(t, err)
	second, err := l.Append(attempt("a2", schemas.StatusFailed))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)
	assert.True(t, second.Timestamp.After(first.Timestamp))
	assert.Equal(t, 1, first.CandidatesTried)
	require.NotNil(t, first.Selected)
	assert.Nil(t, second.Selected, "failed attempts record no selection")

	reopened := Open(dir, zaptest.NewLogger(t))
	entries := reopened.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a1", entries[0].AttemptID)
	assert.Equal(t, "a2", entries[1].AttemptID)

	third, err := reopened.Append(attempt("a3", schemas.StatusManualRequired))
	require.NoError(t, err)
	assert.Equal(t, 3, third.Sequence)
	assert.True(t, third.Timestamp.After(second.Timestamp))
}

func TestLog_MonotonicTimestamps(t *testing.T) {
	l := Open(t.TempDir(), zaptest.NewLogger(t))
	frozen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return frozen }

	var prev time.Time
	for i := 0; i < 5; i++ {
		e, err := l.Append(attempt("x", schemas.StatusHealed))
		require.NoError(t, err)
		assert.True(t, e.Timestamp.After(prev), "entry %d", i)
		prev = e.Timestamp
	}

	// A clock that steps backwards still yields increasing timestamps.
	l.now = func() time.Time { return frozen.Add(-time.Hour) }
	e, err := l.Append(attempt("y", schemas.StatusHealed))
	require.NoError(t, err)
	assert.True(t, e.Timestamp.After(prev))
}

func TestLog_CorruptReportStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := ReportPath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	l := Open(dir, zap.New(core))
	assert.Empty(t, l.Entries())
	assert.Equal(t, 1, logs.FilterMessage("Healing report unreadable; starting a new one").Len())

	_, err := l.Append(attempt("a1", schemas.StatusHealed))
	require.NoError(t, err)

	entries, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLog_EntriesIsACopy(t *testing.T) {
	l := Open(t.TempDir(), zaptest.NewLogger(t))
	_, err := l.Append(attempt("a1", schemas.StatusHealed))
	require.NoError(t, err)

	got := l.Entries()
	got[0].AttemptID = "mutated"
	assert.Equal(t, "a1", l.Entries()[0].AttemptID)
}

func TestAuditEntry_AutoFixProjection(t *testing.T) {
	a := attempt("a1", schemas.StatusHealed)
	assert.Nil(t, schemas.NewAuditEntry(a).Audit)

	a.AutoFix = schemas.AutoFixAudit{Status: schemas.AutoFixSuccess, Method: schemas.FixStructured, BeforeHash: "aa", AfterHash: "bb"}
	e := schemas.NewAuditEntry(a)
	require.NotNil(t, e.Audit)
	assert.Equal(t, "bb", e.Audit.AfterHash)
}
