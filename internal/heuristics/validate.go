package heuristics

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

// MatchBonus is added to a candidate's confidence for each attribute value
// of its selector that occurs literally in the snapshot.
const MatchBonus = 0.01

// MaxSelectorLength bounds selectors accepted from outside sources.
const MaxSelectorLength = 1000

var (
	ErrEmptySelector     = errors.New("selector is empty")
	ErrSelectorTooLong   = errors.New("selector exceeds maximum length")
	ErrSelectorInjection = errors.New("selector contains a script pattern")
	ErrSelectorSyntax    = errors.New("selector has invalid leading character")
)

// ValidateAgainstDOM re-scores candidates against the snapshot. Each
// [attr='value'] clause whose value appears in dom adds MatchBonus, capped at
// 1.0; ValidationNotes records the match count. The input is not modified.
func ValidateAgainstDOM(cands []schemas.Candidate, dom string) []schemas.Candidate {
	out := make([]schemas.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Selector == "" {
			continue
		}
		matches := 0
		for _, clause := range AttributeClauses(c.Selector) {
			if clause.Value != "" && strings.Contains(dom, clause.Value) {
				matches++
			}
		}
		c.Confidence = math.Min(1.0, round3(c.Confidence+float64(matches)*MatchBonus))
		c.ValidationNotes = fmt.Sprintf("attr_matches=%d", matches)
		out = append(out, c)
	}
	return out
}

var dangerousPatterns = []string{"javascript:", "<script", "onerror=", "onload="}

// CheckSelector rejects selectors that are empty, oversized, carry script
// patterns, or cannot be valid for their strategy.
func CheckSelector(strategy schemas.Strategy, selector string) error {
	if strings.TrimSpace(selector) == "" {
		return ErrEmptySelector
	}
	if len(selector) > MaxSelectorLength {
		return fmt.Errorf("%w: %d characters", ErrSelectorTooLong, len(selector))
	}
	lower := strings.ToLower(selector)
	for _, p := range dangerousPatterns {
		if strings.Contains(lower, p) {
			return fmt.Errorf("%w: %s", ErrSelectorInjection, p)
		}
	}

	first := selector[0]
	switch strategy {
	case schemas.StrategyCSS:
		if !isLetter(first) && !strings.ContainsRune("#.[*:", rune(first)) {
			return fmt.Errorf("%w: %q", ErrSelectorSyntax, first)
		}
	case schemas.StrategyXPath:
		if first != '/' && first != '(' && first != '.' {
			return fmt.Errorf("%w: %q", ErrSelectorSyntax, first)
		}
	}
	return nil
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
