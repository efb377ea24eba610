// File: api/schemas/healing.go
package schemas

import (
	"fmt"
	"time"
)

// -- Locator Schemas --

// Strategy identifies how a selector value is interpreted by the browser driver.
type Strategy string

const (
	StrategyCSS   Strategy = "css"
	StrategyXPath Strategy = "xpath"
	StrategyID    Strategy = "id"
	StrategyName  Strategy = "name"
)

// ParseStrategy normalizes a strategy string. Selenium-style names such as
// "By.CSS_SELECTOR" or "css selector" are accepted as aliases.
func ParseStrategy(s string) (Strategy, error) {
	switch normalizeStrategy(s) {
	case "css", "css_selector", "cssselector", "selector":
		return StrategyCSS, nil
	case "xpath":
		return StrategyXPath, nil
	case "id":
		return StrategyID, nil
	case "name":
		return StrategyName, nil
	default:
		return "", fmt.Errorf("unsupported locator strategy %q", s)
	}
}

func normalizeStrategy(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == ' ' || c == '-':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	str := string(out)
	if len(str) > 3 && str[:3] == "by." {
		str = str[3:]
	}
	return str
}

// SourceFormat is the on-disk format of a locator definition file.
type SourceFormat string

const (
	FormatYAML SourceFormat = "yaml"
	FormatXML  SourceFormat = "xml"
)

// SourceLocation points at the file a definition was loaded from.
type SourceLocation struct {
	File   string       `json:"file"`
	Format SourceFormat `json:"format"`
}

// LocatorDefinition is a named, persisted (strategy, value) pair.
type LocatorDefinition struct {
	Name     string         `json:"name"`
	Strategy Strategy       `json:"strategy"`
	Value    string         `json:"value"`
	Source   SourceLocation `json:"source"`
}

// String renders the definition the way it appears in artifacts and logs.
func (l LocatorDefinition) String() string {
	return fmt.Sprintf("Locator(name='%s', value=(%s, %s))", l.Name, l.Strategy, l.Value)
}

// Ref returns the name + value projection stored in failure contexts.
func (l LocatorDefinition) Ref() LocatorRef {
	return LocatorRef{Name: l.Name, Strategy: l.Strategy, Value: l.Value}
}

// LocatorRef is the original locator as recorded in a FailureContext.
type LocatorRef struct {
	Name     string   `json:"name"`
	Strategy Strategy `json:"strategy"`
	Value    string   `json:"value"`
}

// -- Failure Context --

// ActionKind is the browser action that was being attempted when a lookup failed.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionSendKeys ActionKind = "send_keys"
	ActionGetText  ActionKind = "get_text"
)

// Valid reports whether the action is one the probe knows how to replay.
func (a ActionKind) Valid() bool {
	switch a {
	case ActionClick, ActionSendKeys, ActionGetText:
		return true
	}
	return false
}

// FailureContext is captured once per lookup failure. It is passed by value
// through every downstream stage and never modified after capture.
type FailureContext struct {
	Timestamp        time.Time  `json:"timestamp"`
	URL              string     `json:"url"`
	Action           ActionKind `json:"action"`
	Locator          LocatorRef `json:"locator"`
	ExceptionType    string     `json:"exception_type"`
	ExceptionMessage string     `json:"exception_message"`
	DOMSnapshotPath  string     `json:"dom_snapshot_path"`
	ScreenshotPath   string     `json:"screenshot_path"`
}

// -- Candidates --

// AttributeUse records one attribute/value pair a candidate selector was derived from.
type AttributeUse struct {
	Attribute string `json:"attr"`
	Value     string `json:"value"`
}

// Candidate is a proposed replacement locator.
type Candidate struct {
	Selector        string         `json:"selector"`
	Strategy        Strategy       `json:"strategy"`
	AttributesUsed  []AttributeUse `json:"attributes_used"`
	StabilityScore  float64        `json:"stability_score"`
	Confidence      float64        `json:"confidence"`
	Rationale       string         `json:"rationale"`
	ValidationNotes string         `json:"validation_notes,omitempty"`
}

// CandidatesFile is the sidecar written next to a failure-context file.
type CandidatesFile struct {
	Source              string      `json:"source"`
	SourceContext       string      `json:"source_context"`
	URL                 string      `json:"url"`
	Action              ActionKind  `json:"action"`
	LocatorBefore       LocatorRef  `json:"locator_before"`
	ConfidenceThreshold float64     `json:"confidence_threshold"`
	HumanRequired       bool        `json:"human_required"`
	FallbackUsed        bool        `json:"fallback_used,omitempty"`
	Candidates          []Candidate `json:"candidates"`
}

// -- Healing Attempt --

// HealingStatus is the summarized outcome written to the healing report.
type HealingStatus string

const (
	StatusHealed         HealingStatus = "healed"
	StatusManualRequired HealingStatus = "manual_required"
	StatusFailed         HealingStatus = "failed"
)

// AutoFixStatus describes what happened to the persisted definition.
type AutoFixStatus string

const (
	AutoFixSuccess      AutoFixStatus = "success"
	AutoFixFailed       AutoFixStatus = "failed"
	AutoFixManual       AutoFixStatus = "manual"
	AutoFixNotAttempted AutoFixStatus = "not_attempted"
)

// FixMethod records which rewrite path produced the change.
type FixMethod string

const (
	FixStructured      FixMethod = "structured"
	FixLiteralFallback FixMethod = "literal_fallback"
)

// AutoFixAudit is the before/after record of a definition rewrite.
type AutoFixAudit struct {
	Status        AutoFixStatus `json:"status"`
	Method        FixMethod     `json:"method,omitempty"`
	File          string        `json:"file,omitempty"`
	LocatorBefore LocatorRef    `json:"locator_before"`
	LocatorAfter  LocatorRef    `json:"locator_after"`
	BeforeHash    string        `json:"before_hash,omitempty"`
	AfterHash     string        `json:"after_hash,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// ProbeRecord is one local attempt of the failed action with a candidate.
type ProbeRecord struct {
	Selector string        `json:"selector"`
	Strategy Strategy      `json:"strategy"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealingAttempt is one full run of the resolution pipeline.
type HealingAttempt struct {
	ID             string         `json:"id"`
	Context        FailureContext `json:"context"`
	ContextPath    string         `json:"context_path,omitempty"`
	CandidatesPath string         `json:"candidates_path,omitempty"`
	Source         string         `json:"source"`
	Candidates     []Candidate    `json:"candidates"`
	Selected       *Candidate     `json:"selected,omitempty"`
	HumanRequired  bool           `json:"human_required"`
	FallbackUsed   bool           `json:"fallback_used,omitempty"`
	Probes         []ProbeRecord  `json:"probes"`
	Healed         bool           `json:"healed"`
	Status         HealingStatus  `json:"status"`
	AutoFix        AutoFixAudit   `json:"auto_fix"`
	Logs           []string       `json:"logs,omitempty"`
}

// ProbeCount returns the number of probes performed.
func (a *HealingAttempt) ProbeCount() int { return len(a.Probes) }

// AuditEntry is the append-only projection of a HealingAttempt.
type AuditEntry struct {
	Sequence        int            `json:"sequence"`
	Timestamp       time.Time      `json:"timestamp"`
	AttemptID       string         `json:"attempt_id"`
	Action          ActionKind     `json:"action"`
	URL             string         `json:"url"`
	LocatorBefore   LocatorRef     `json:"locator_before"`
	Selected        *Candidate     `json:"selected,omitempty"`
	CandidatesTried int            `json:"candidates_tried"`
	Candidates      []Candidate    `json:"candidates,omitempty"`
	Probes          []ProbeRecord  `json:"probes,omitempty"`
	HumanRequired   bool           `json:"human_required"`
	Source          string         `json:"source"`
	Status          HealingStatus  `json:"status"`
	Audit           *AutoFixAudit  `json:"audit,omitempty"`
	Context         FailureContext `json:"context"`
}

// NewAuditEntry projects an attempt into an audit entry. Sequence and
// timestamp are assigned by the log on append.
func NewAuditEntry(a *HealingAttempt) AuditEntry {
	entry := AuditEntry{
		AttemptID:       a.ID,
		Action:          a.Context.Action,
		URL:             a.Context.URL,
		LocatorBefore:   a.Context.Locator,
		CandidatesTried: a.ProbeCount(),
		Candidates:      a.Candidates,
		Probes:          a.Probes,
		HumanRequired:   a.HumanRequired,
		Source:          a.Source,
		Status:          a.Status,
		Context:         a.Context,
	}
	if a.Healed && a.Selected != nil {
		sel := *a.Selected
		entry.Selected = &sel
	}
	if a.AutoFix.Status != "" && a.AutoFix.Status != AutoFixNotAttempted {
		fix := a.AutoFix
		entry.Audit = &fix
	}
	return entry
}
