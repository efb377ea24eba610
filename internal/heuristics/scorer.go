// File: internal/heuristics/scorer.go
package heuristics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

const (
	// UniquenessBonus is added when a pair occurs on exactly one element.
	UniquenessBonus = 0.04
	// DefaultWeight applies to attributes missing from the weight table.
	DefaultWeight = 0.5
	// MaxCandidates bounds the ranked list returned by Candidates.
	MaxCandidates = 10
)

// Weights is the stability weight per attribute. Test-id style attributes
// are the most stable, styling classes the least.
var Weights = map[string]float64{
	"data-test-id": 0.95,
	"data-testid":  0.93,
	"aria-label":   0.88,
	"role":         0.82,
	"name":         0.80,
	"type":         0.72,
	"id":           0.70,
	"class":        0.55,
}

// Weight returns the table weight for attr.
func Weight(attr string) float64 {
	if w, ok := Weights[strings.ToLower(attr)]; ok {
		return w
	}
	return DefaultWeight
}

// Score is the weight for attr plus the uniqueness bonus, rounded to three
// decimal places.
func Score(attr string, unique bool) float64 {
	s := Weight(attr)
	if unique {
		s += UniquenessBonus
	}
	return round3(s)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Candidates turns a harvest into a ranked candidate list: stable sort by
// score descending, deduplicated by selector with the first occurrence kept,
// truncated to limit (MaxCandidates when limit <= 0).
func Candidates(h Harvest, limit int) []schemas.Candidate {
	if limit <= 0 {
		limit = MaxCandidates
	}

	all := make([]schemas.Candidate, 0, len(h.Attributes))
	for _, a := range h.Attributes {
		selector, ok := BuildSelector(a.Tag, a.Attribute, a.Value)
		if !ok {
			continue
		}
		unique := h.Unique(a.Attribute, a.Value)
		score := Score(a.Attribute, unique)
		all = append(all, schemas.Candidate{
			Selector:       selector,
			Strategy:       schemas.StrategyCSS,
			AttributesUsed: []schemas.AttributeUse{{Attribute: a.Attribute, Value: a.Value}},
			StabilityScore: score,
			Confidence:     score,
			Rationale:      fmt.Sprintf("Based on %s attribute; unique=%t", a.Attribute, unique),
		})
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StabilityScore > all[j].StabilityScore
	})
	return Truncate(Dedup(all), limit)
}

// GenerateCandidates harvests dom with the given priorities and returns the
// ranked list. Identical input always yields an identical list.
func GenerateCandidates(dom string, priorities []string, limit int) []schemas.Candidate {
	return Candidates(HarvestAttributes(dom, priorities), limit)
}

// Dedup drops later candidates whose selector was already seen.
func Dedup(cands []schemas.Candidate) []schemas.Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]schemas.Candidate, 0, len(cands))
	for _, c := range cands {
		if _, dup := seen[c.Selector]; dup {
			continue
		}
		seen[c.Selector] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Truncate returns at most n candidates.
func Truncate(cands []schemas.Candidate, n int) []schemas.Candidate {
	if n >= 0 && len(cands) > n {
		return cands[:n]
	}
	return cands
}
