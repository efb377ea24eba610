// File: internal/suggest/service.go
package suggest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

// Request is the suggestion-service input.
type Request struct {
	DOMContent          string   `json:"dom_content"`
	FailedLocator       string   `json:"failed_locator"`
	ExceptionType       string   `json:"exception_type"`
	SelectorPreferences []string `json:"selector_preferences"`
}

// Proposal is one externally suggested locator.
type Proposal struct {
	Strategy   schemas.Strategy
	Value      string
	Confidence float64
	Rationale  string
}

// Response is the suggestion-service output. A malformed reply yields an
// empty response, never an error.
type Response struct {
	Candidates []Proposal
}

// Choice is the service's pick among the top ranked candidates.
type Choice struct {
	Index     int
	Rationale string
}

// Service is the external suggestion capability consumed by the workflow.
type Service interface {
	Suggest(ctx context.Context, req Request) (Response, error)
	Classify(ctx context.Context, message string) (string, error)
	Choose(ctx context.Context, threshold float64, top []schemas.Candidate) (Choice, error)
}

// Failure classification labels.
const (
	LabelInvalidLocator = "invalid_locator"
	LabelTiming         = "timing"
	LabelStale          = "stale"
)

var (
	ErrUnknownLabel = errors.New("unrecognized error label")
	ErrBadChoice    = errors.New("invalid candidate choice")
)

// MaxPromptDOM bounds the DOM text sent to the model.
const MaxPromptDOM = 20000

const suggestSystemPrompt = `You are an expert test automation engineer repairing a broken browser locator.
Analyze the HTML and suggest stable, unique replacement locators for the element the broken locator was targeting.
Prefer data-* test attributes and semantic attributes in the given priority order. Avoid absolute XPaths.
Respond with JSON only: {"candidates": [{"locator": ["css", "button[data-testid='x']"], "confidence": 0.9, "rationale": "..."}]}
Valid strategies are css, xpath, id and name. Return at most 5 candidates.`

const classifySystemPrompt = `You are a test automation assistant. Classify the cause of a locator failure as exactly one of: invalid_locator, timing, stale. Respond with the label only.`

const chooseSystemPrompt = `Choose the best locator candidate based on stability and semantics.
Respond with JSON only: {"selected_index": 0, "rationale": "..."}`

// truncateDOM cuts s to at most limit bytes without splitting a rune.
func truncateDOM(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// LLMService implements Service over a language model client.
type LLMService struct {
	client schemas.LLMClient
	logger *zap.Logger
}

func NewLLMService(client schemas.LLMClient, logger *zap.Logger) *LLMService {
	return &LLMService{client: client, logger: logger.Named("suggest.llm")}
}

func (s *LLMService) Suggest(ctx context.Context, req Request) (Response, error) {
	dom := truncateDOM(req.DOMContent, MaxPromptDOM)
	user := fmt.Sprintf("Broken Locator: %s\nException Type: %s\nSelector Priority Order: %s\n\nHTML Content:\n%s",
		req.FailedLocator, req.ExceptionType, strings.Join(req.SelectorPreferences, ", "), dom)

	raw, err := s.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: suggestSystemPrompt,
		UserPrompt:   user,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.1, ForceJSONFormat: true},
	})
	if err != nil {
		return Response{}, fmt.Errorf("suggestion request failed: %w", err)
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		s.logger.Warn("Discarding malformed suggestion response", zap.Error(err))
		return Response{}, nil
	}
	return resp, nil
}

func (s *LLMService) Classify(ctx context.Context, message string) (string, error) {
	raw, err := s.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   "Message: " + message,
		Tier:         schemas.TierFast,
	})
	if err != nil {
		return "", fmt.Errorf("classification request failed: %w", err)
	}
	return ParseLabel(raw)
}

func (s *LLMService) Choose(ctx context.Context, threshold float64, top []schemas.Candidate) (Choice, error) {
	payload, err := json.Marshal(top)
	if err != nil {
		return Choice{}, fmt.Errorf("encoding candidates: %w", err)
	}
	raw, err := s.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: chooseSystemPrompt,
		UserPrompt:   fmt.Sprintf("Threshold: %.2f\nCandidates: %s", threshold, payload),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	})
	if err != nil {
		return Choice{}, fmt.Errorf("selection request failed: %w", err)
	}

	var out struct {
		SelectedIndex *int   `json:"selected_index"`
		Rationale     string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &out); err != nil {
		return Choice{}, fmt.Errorf("%w: %v", ErrBadChoice, err)
	}
	if out.SelectedIndex == nil || *out.SelectedIndex < 0 || *out.SelectedIndex >= len(top) {
		return Choice{}, ErrBadChoice
	}
	return Choice{Index: *out.SelectedIndex, Rationale: out.Rationale}, nil
}

// StripCodeFences removes a surrounding markdown code fence, with or without
// a language tag.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type rawProposal struct {
	Locator    json.RawMessage `json:"locator"`
	Selector   string          `json:"selector"`
	Strategy   string          `json:"strategy"`
	Confidence float64         `json:"confidence"`
	Rationale  string          `json:"rationale"`
}

// ParseResponse decodes a model reply. The locator may be a two element
// array ["css", "..."], an object {"strategy", "value"}, or flat
// selector/strategy fields. Entries with an unknown strategy or an empty
// value are dropped; confidences are clamped to [0, 1].
func ParseResponse(raw string) (Response, error) {
	var envelope struct {
		Candidates []rawProposal `json:"candidates"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(StripCodeFences(raw))))
	if err := dec.Decode(&envelope); err != nil {
		return Response{}, fmt.Errorf("decoding suggestion response: %w", err)
	}

	var resp Response
	for _, rp := range envelope.Candidates {
		strategy, value := rp.Strategy, rp.Selector
		if len(rp.Locator) > 0 {
			var pair []string
			var obj struct {
				Strategy string `json:"strategy"`
				Value    string `json:"value"`
			}
			switch {
			case json.Unmarshal(rp.Locator, &pair) == nil && len(pair) == 2:
				strategy, value = pair[0], pair[1]
			case json.Unmarshal(rp.Locator, &obj) == nil:
				strategy, value = obj.Strategy, obj.Value
			}
		}
		if strategy == "" {
			strategy = string(schemas.StrategyCSS)
		}
		st, err := schemas.ParseStrategy(strategy)
		if err != nil || strings.TrimSpace(value) == "" {
			continue
		}
		resp.Candidates = append(resp.Candidates, Proposal{
			Strategy:   st,
			Value:      value,
			Confidence: clamp01(rp.Confidence),
			Rationale:  rp.Rationale,
		})
	}
	return resp, nil
}

// ParseLabel reduces a model reply to a known classification label.
func ParseLabel(raw string) (string, error) {
	fields := strings.Fields(strings.ToLower(StripCodeFences(raw)))
	if len(fields) == 0 {
		return "", ErrUnknownLabel
	}
	label := strings.Trim(fields[0], `"'.,:;`)
	switch label {
	case LabelInvalidLocator, LabelTiming, LabelStale:
		return label, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, label)
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
