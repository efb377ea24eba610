// internal/reporting/sarif_reporter.go
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/observability"
	"github.com/xkilldash9x/selfheal/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "selfheal"
	ToolInfoURI  = "https://github.com/xkilldash9x/selfheal"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// statusRule describes the SARIF rule each healing status maps to.
type statusRule struct {
	id          string
	name        string
	level       sarif.Level
	description string
	help        string
}

var statusRules = map[schemas.HealingStatus]statusRule{
	schemas.StatusHealed: {
		id:          "SELFHEAL-HEALED",
		name:        "LocatorHealed",
		level:       sarif.LevelNote,
		description: "A broken locator was replaced by a candidate validated on the live page.",
		help:        "Review the rewritten locator definition and commit it.",
	},
	schemas.StatusManualRequired: {
		id:          "SELFHEAL-MANUAL-REQUIRED",
		name:        "LocatorHealedManualFix",
		level:       sarif.LevelWarning,
		description: "A broken locator was healed for the run but the definition was not rewritten.",
		help:        "Apply the selected locator to the definition file by hand or with `selfheal apply`.",
	},
	schemas.StatusFailed: {
		id:          "SELFHEAL-FAILED",
		name:        "LocatorUnhealed",
		level:       sarif.LevelError,
		description: "No replacement candidate could be validated for a broken locator.",
		help:        "Inspect the DOM snapshot and screenshot captured for the failure.",
	},
}

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// Rules are registered lazily, one per healing status seen. It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the rule set.
	mu    sync.Mutex
	rules map[string]bool
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				// Empty, not nil, so the JSON holds "[]".
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer: writer,
		logger: observability.GetLogger().Named("sarif_reporter"),
		log:    log,
		rules:  make(map[string]bool),
	}
}

// Write converts an audit entry into a SARIF result.
func (r *SARIFReporter) Write(entry *schemas.AuditEntry) error {
	rule, ok := statusRules[entry.Status]
	if !ok {
		return fmt.Errorf("unknown healing status %q in entry %d", entry.Status, entry.Sequence)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureRule(rule)

	props := sarif.PropertyBag{
		"sequence":        entry.Sequence,
		"attemptId":       entry.AttemptID,
		"action":          entry.Action,
		"source":          entry.Source,
		"candidatesTried": entry.CandidatesTried,
		"humanRequired":   entry.HumanRequired,
		"timestamp":       entry.Timestamp.Format(time.RFC3339Nano),
		"locatorStrategy": entry.LocatorBefore.Strategy,
		"locatorValue":    entry.LocatorBefore.Value,
		"exceptionType":   entry.Context.ExceptionType,
		"domSnapshotPath": entry.Context.DOMSnapshotPath,
		"screenshotPath":  entry.Context.ScreenshotPath,
	}
	if entry.Selected != nil {
		props["confidence"] = entry.Selected.Confidence
	}

	result := &sarif.Result{
		RuleID:     rule.id,
		Message:    &sarif.Message{Text: pString(resultMessage(entry))},
		Level:      rule.level,
		Locations:  createLocations(entry),
		Fixes:      createFixes(entry),
		Properties: &props,
	}
	run := r.log.Runs[0]
	run.Results = append(run.Results, result)
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.log)
	// Always close, even after an encoding failure.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Debug("Wrote SARIF report", zap.Duration("duration", time.Since(startTime)))
	return nil
}

// ensureRule registers rule on first use. Must be called with mu held.
func (r *SARIFReporter) ensureRule(rule statusRule) {
	if r.rules[rule.id] {
		return
	}
	r.rules[rule.id] = true
	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:                   rule.id,
		Name:                 pString(rule.name),
		ShortDescription:     &sarif.MultiformatMessageString{Text: pString(rule.description)},
		Help:                 &sarif.MultiformatMessageString{Text: pString(rule.help), Markdown: pString("**" + rule.name + "**\n\n" + rule.help)},
		DefaultConfiguration: &sarif.ReportingConfiguration{Level: rule.level},
	})
}

func resultMessage(e *schemas.AuditEntry) string {
	before := fmt.Sprintf("Locator '%s' %s", e.LocatorBefore.Name, locatorText(e.LocatorBefore))
	switch {
	case e.Selected == nil:
		return fmt.Sprintf("%s could not be healed for %s on %s after %d probes", before, e.Action, e.URL, e.CandidatesTried)
	case e.Status == schemas.StatusManualRequired:
		return fmt.Sprintf("%s healed to (%s, %s); update the definition manually", before, e.Selected.Strategy, e.Selected.Selector)
	default:
		return fmt.Sprintf("%s healed to (%s, %s)", before, e.Selected.Strategy, e.Selected.Selector)
	}
}

// createLocations points at the rewritten definition file when there is
// one, and at the page URL otherwise.
func createLocations(e *schemas.AuditEntry) []*sarif.Location {
	uri := e.URL
	if e.Audit != nil && e.Audit.File != "" {
		uri = e.Audit.File
	}
	loc := &sarif.Location{
		LogicalLocations: []*sarif.LogicalLocation{{
			Name: pString(e.LocatorBefore.Name),
			Kind: pString("locator"),
		}},
		Message: &sarif.Message{Text: pString(fmt.Sprintf("%s on %s", e.Action, e.URL))},
	}
	if uri != "" {
		loc.PhysicalLocation = &sarif.PhysicalLocation{ArtifactLocation: &sarif.ArtifactLocation{URI: pString(uri)}}
	}
	return []*sarif.Location{loc}
}

// createFixes describes the definition change: applied for auto-fixed
// entries, proposed for manual ones.
func createFixes(e *schemas.AuditEntry) []*sarif.Fix {
	if e.Selected == nil || e.Audit == nil || e.Audit.File == "" {
		return nil
	}
	desc := "Applied " + string(e.Audit.Method) + " rewrite"
	switch e.Audit.Status {
	case schemas.AutoFixSuccess:
	case schemas.AutoFixManual:
		desc = "Proposed replacement"
	default:
		return nil
	}
	return []*sarif.Fix{{
		Description: &sarif.Message{Text: pString(desc)},
		ArtifactChanges: []*sarif.ArtifactChange{{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(e.Audit.File)},
			Replacements: []*sarif.Replacement{{
				DeletedRegion:   &sarif.Region{Snippet: &sarif.ArtifactContent{Text: pString(e.LocatorBefore.Value)}},
				InsertedContent: &sarif.ArtifactContent{Text: pString(e.Selected.Selector)},
			}},
		}},
	}}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
