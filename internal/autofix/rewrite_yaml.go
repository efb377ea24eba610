// File: internal/autofix/rewrite_yaml.go
package autofix

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/locators"
)

// YAMLRewriter patches one entry of a YAML store in place. Only the byte
// spans of the strategy and value scalars change; comments, ordering and
// formatting elsewhere are left untouched.
type YAMLRewriter struct{}

func (YAMLRewriter) Parse(data []byte) ([]schemas.LocatorDefinition, error) {
	return locators.ParseYAML(data)
}

// EntryOffset returns the offset of the named entry's value key.
func (YAMLRewriter) EntryOffset(data []byte, name string) (int, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLiteralNotFound, err)
	}
	entries, err := locators.YAMLEntries(&doc)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLiteralNotFound, err)
	}
	for _, e := range entries {
		if e.Name == name {
			off, err := nodeOffset(data, lineOffsets(data), e.ValueKey)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrLiteralNotFound, err)
			}
			return off, nil
		}
	}
	return 0, fmt.Errorf("%w: no entry named %q", ErrLiteralNotFound, name)
}

type span struct {
	start, end int
	text       string
}

func (YAMLRewriter) Rewrite(data []byte, name string, before, after schemas.LocatorRef) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStructuredMatch, err)
	}
	entries, err := locators.YAMLEntries(&doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStructuredMatch, err)
	}

	var entry *locators.YAMLEntry
	for i := range entries {
		if entries[i].Name == name {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: no entry named %q", ErrNoStructuredMatch, name)
	}
	if entry.Value.Value != before.Value {
		return nil, fmt.Errorf("%w: entry %q holds %q, expected %q", ErrNoStructuredMatch, name, entry.Value.Value, before.Value)
	}

	lines := lineOffsets(data)
	var edits []span

	valueEdit, err := scalarSpan(data, lines, entry.Value)
	if err != nil {
		return nil, err
	}
	valueEdit.text, err = renderScalar(after.Value, entry.Value.Style)
	if err != nil {
		return nil, err
	}
	edits = append(edits, valueEdit)

	switch {
	case entry.Strategy != nil:
		if entry.Strategy.Value != string(after.Strategy) {
			s, err := scalarSpan(data, lines, entry.Strategy)
			if err != nil {
				return nil, err
			}
			s.text, err = renderScalar(string(after.Strategy), entry.Strategy.Style)
			if err != nil {
				return nil, err
			}
			edits = append(edits, s)
		}
	case after.Strategy != schemas.StrategyCSS:
		ins, err := strategyInsertion(data, lines, entry.ValueKey, after.Strategy)
		if err != nil {
			return nil, err
		}
		edits = append(edits, ins)
	}

	out := applySpans(data, edits)
	if err := verifyEntry(YAMLRewriter{}, out, name, after); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStructuredMatch, err)
	}
	return out, nil
}

// lineOffsets returns the byte offset of the start of each line.
func lineOffsets(data []byte) []int {
	offsets := []int{0}
	for i, b := range data {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// nodeOffset converts a node's 1-based line and rune column to a byte offset.
func nodeOffset(data []byte, lines []int, n *yaml.Node) (int, error) {
	if n.Line < 1 || n.Line > len(lines) {
		return 0, fmt.Errorf("%w: node line %d out of range", ErrNoStructuredMatch, n.Line)
	}
	off := lines[n.Line-1]
	for col := 1; col < n.Column; col++ {
		if off >= len(data) || data[off] == '\n' {
			return 0, fmt.Errorf("%w: node column %d out of range", ErrNoStructuredMatch, n.Column)
		}
		_, size := utf8.DecodeRune(data[off:])
		off += size
	}
	return off, nil
}

// scalarSpan locates the source bytes of a scalar node. Block scalars and
// multi-line plain scalars are not patched in place.
func scalarSpan(data []byte, lines []int, n *yaml.Node) (span, error) {
	start, err := nodeOffset(data, lines, n)
	if err != nil {
		return span{}, err
	}
	switch n.Style {
	case yaml.DoubleQuotedStyle:
		if start >= len(data) || data[start] != '"' {
			break
		}
		for i := start + 1; i < len(data); i++ {
			switch data[i] {
			case '\\':
				i++
			case '"':
				return span{start: start, end: i + 1}, nil
			}
		}
	case yaml.SingleQuotedStyle:
		if start >= len(data) || data[start] != '\'' {
			break
		}
		for i := start + 1; i < len(data); i++ {
			if data[i] != '\'' {
				continue
			}
			if i+1 < len(data) && data[i+1] == '\'' {
				i++
				continue
			}
			return span{start: start, end: i + 1}, nil
		}
	case 0:
		end := start + len(n.Value)
		if end <= len(data) && string(data[start:end]) == n.Value {
			return span{start: start, end: end}, nil
		}
	}
	return span{}, fmt.Errorf("%w: scalar at line %d cannot be patched in place", ErrNoStructuredMatch, n.Line)
}

// renderScalar encodes value as a single-line YAML scalar, keeping the
// original quoting style where yaml.v3 allows it.
func renderScalar(value string, style yaml.Style) (string, error) {
	if style != yaml.DoubleQuotedStyle && style != yaml.SingleQuotedStyle {
		style = 0
	}
	out, err := yaml.Marshal(&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, Style: style})
	if err != nil {
		return "", fmt.Errorf("rendering scalar: %w", err)
	}
	text := strings.TrimSuffix(string(out), "\n")
	if strings.Contains(text, "\n") {
		return "", fmt.Errorf("%w: value does not fit on one line", ErrNoStructuredMatch)
	}
	return text, nil
}

// strategyInsertion adds a strategy key above the value key, at the same
// indentation, for entries that relied on the css default.
func strategyInsertion(data []byte, lines []int, valueKey *yaml.Node, strategy schemas.Strategy) (span, error) {
	keyStart, err := nodeOffset(data, lines, valueKey)
	if err != nil {
		return span{}, err
	}
	lineStart := lines[valueKey.Line-1]
	indent := data[lineStart:keyStart]
	if len(bytes.TrimLeft(indent, " ")) != 0 {
		return span{}, fmt.Errorf("%w: value key at line %d is not on its own line", ErrNoStructuredMatch, valueKey.Line)
	}
	rendered, err := renderScalar(string(strategy), 0)
	if err != nil {
		return span{}, err
	}
	return span{start: lineStart, end: lineStart, text: string(indent) + "strategy: " + rendered + "\n"}, nil
}

func applySpans(data []byte, edits []span) []byte {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := append([]byte(nil), data...)
	for _, e := range edits {
		tail := append([]byte(e.text), out[e.end:]...)
		out = append(out[:e.start], tail...)
	}
	return out
}
