// File: internal/heuristics/harvester.go
package heuristics

import (
	"regexp"
	"sync"
)

// Attribute is one attribute occurrence found on an element-opening tag.
type Attribute struct {
	Tag       string
	Attribute string
	Value     string
}

// Pair identifies an (attribute, value) combination across a snapshot.
type Pair struct {
	Attribute string
	Value     string
}

// Harvest is the result of scanning a DOM snapshot.
type Harvest struct {
	// Attributes are in document order; within one tag they follow the
	// priority list order.
	Attributes []Attribute
	// Counts holds how many harvested elements share each pair.
	Counts map[Pair]int
}

// Unique reports whether the pair occurs on exactly one harvested element.
func (h Harvest) Unique(attr, value string) bool {
	return h.Counts[Pair{Attribute: attr, Value: value}] == 1
}

// openingTag matches an element-opening tag and captures the tag name and the
// raw attribute text. Closing tags, comments and doctypes do not match.
var openingTag = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9_-]*)((?:\s[^<>]*)?)>`)

var (
	attrPatternsMu sync.RWMutex
	attrPatterns   = map[string]*regexp.Regexp{}
)

// attrPattern returns the compiled matcher for one attribute name. The name
// must follow whitespace so "id" never matches inside "data-testid".
func attrPattern(attr string) *regexp.Regexp {
	attrPatternsMu.RLock()
	re, ok := attrPatterns[attr]
	attrPatternsMu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile(`(?i)\s` + regexp.QuoteMeta(attr) + `\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	attrPatternsMu.Lock()
	attrPatterns[attr] = re
	attrPatternsMu.Unlock()
	return re
}

// HarvestAttributes scans dom for opening tags carrying any of the priority
// attributes. It is a pattern scan, not a parser: nesting, namespaces and
// malformed markup are not resolved. Each tag contributes at most one record
// per attribute, and empty values are skipped. RE2 keeps the scan linear in
// the size of dom.
func HarvestAttributes(dom string, priorities []string) Harvest {
	h := Harvest{Counts: make(map[Pair]int)}
	if dom == "" || len(priorities) == 0 {
		return h
	}

	patterns := make([]*regexp.Regexp, len(priorities))
	for i, attr := range priorities {
		patterns[i] = attrPattern(attr)
	}

	for _, m := range openingTag.FindAllStringSubmatch(dom, -1) {
		tag, blob := m[1], m[2]
		if blob == "" {
			continue
		}
		for i, re := range patterns {
			am := re.FindStringSubmatch(blob)
			if am == nil {
				continue
			}
			value := am[1]
			if value == "" {
				value = am[2]
			}
			if value == "" {
				continue
			}
			h.Attributes = append(h.Attributes, Attribute{Tag: tag, Attribute: priorities[i], Value: value})
			h.Counts[Pair{Attribute: priorities[i], Value: value}]++
		}
	}
	return h
}
