// File: internal/autofix/rewrite_xml.go
package autofix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/locators"
)

// XMLRewriter edits the matching <locator> element through etree and
// serializes the document back.
type XMLRewriter struct{}

func (XMLRewriter) Parse(data []byte) ([]schemas.LocatorDefinition, error) {
	return locators.ParseXML(data)
}

// EntryOffset returns the offset of the named element's start tag.
func (XMLRewriter) EntryOffset(data []byte, name string) (int, error) {
	quoted := regexp.QuoteMeta(name)
	re := regexp.MustCompile(`<locator\b[^>]*?\bname\s*=\s*(?:"` + quoted + `"|'` + quoted + `')`)
	loc := re.FindIndex(data)
	if loc == nil {
		return 0, fmt.Errorf("%w: no locator element named %q", ErrLiteralNotFound, name)
	}
	return loc[0], nil
}

func (XMLRewriter) Rewrite(data []byte, name string, before, after schemas.LocatorRef) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStructuredMatch, err)
	}

	var target *etree.Element
	for _, el := range locators.XMLEntries(doc) {
		if el.SelectAttrValue("name", "") == name {
			target = el
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: no locator element named %q", ErrNoStructuredMatch, name)
	}

	text := target.Text()
	if strings.TrimSpace(text) != before.Value {
		return nil, fmt.Errorf("%w: element %q holds %q, expected %q", ErrNoStructuredMatch, name, strings.TrimSpace(text), before.Value)
	}
	target.SetText(strings.Replace(text, before.Value, after.Value, 1))

	if target.SelectAttr("strategy") != nil || after.Strategy != schemas.StrategyCSS {
		target.CreateAttr("strategy", string(after.Strategy))
	}

	// Only &, < and > are escaped in text, so untouched entries keep their quotes.
	doc.WriteSettings.CanonicalText = true
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing locator document: %w", err)
	}
	if err := verifyEntry(XMLRewriter{}, out, name, after); err != nil {
		return nil, err
	}
	return out, nil
}
