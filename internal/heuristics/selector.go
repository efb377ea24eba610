package heuristics

import (
	"regexp"
	"strings"
)

var cssIdent = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// BuildSelector renders a CSS selector for one harvested attribute:
//
//	class -> tag.firstToken
//	id    -> tag#value, or tag[id='value'] when value is not a CSS identifier
//	other -> tag[attr='value'] with whitespace and quotes escaped
//
// ok is false when no selector can be built, e.g. a blank class list.
func BuildSelector(tag, attr, value string) (selector string, ok bool) {
	switch strings.ToLower(attr) {
	case "class":
		tokens := strings.Fields(value)
		if len(tokens) == 0 || !cssIdent.MatchString(tokens[0]) {
			return "", false
		}
		return tag + "." + tokens[0], true
	case "id":
		if cssIdent.MatchString(value) {
			return tag + "#" + value, true
		}
	}
	return tag + "[" + attr + "='" + escapeValue(value) + "']", true
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, " ", `\ `)

func escapeValue(v string) string {
	return valueEscaper.Replace(v)
}

// attrEquality matches [attr='value'] clauses inside a selector.
var attrEquality = regexp.MustCompile(`\[([^=\]]+)='((?:[^'\\]|\\.)*)'\]`)

// AttributeClauses extracts the (attribute, unescaped value) pairs from the
// attribute-equality clauses of a CSS selector.
func AttributeClauses(selector string) []Pair {
	var out []Pair
	for _, m := range attrEquality.FindAllStringSubmatch(selector, -1) {
		out = append(out, Pair{Attribute: m[1], Value: unescapeValue(m[2])})
	}
	return out
}

func unescapeValue(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			i++
		}
		b.WriteByte(v[i])
	}
	return b.String()
}
