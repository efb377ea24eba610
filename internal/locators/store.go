// File: internal/locators/store.go
package locators

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported locator file format")
	ErrDuplicateLocator  = errors.New("duplicate locator name")
	ErrMalformedStore    = errors.New("malformed locator file")
)

// FormatOf infers the store format from the file extension.
func FormatOf(path string) (schemas.SourceFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return schemas.FormatYAML, nil
	case ".xml":
		return schemas.FormatXML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Load reads every locator file named by paths. Directories are walked for
// .yaml, .yml and .xml files. A leading ~ is expanded. Names must be unique
// across all files.
func Load(paths []string) ([]schemas.LocatorDefinition, error) {
	var files []string
	for _, p := range paths {
		expanded, err := homedir.Expand(p)
		if err != nil {
			return nil, fmt.Errorf("expanding locator path %q: %w", p, err)
		}
		info, err := os.Stat(expanded)
		if err != nil {
			return nil, fmt.Errorf("locator path %q: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, expanded)
			continue
		}
		err = filepath.WalkDir(expanded, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ferr := FormatOf(path); ferr == nil {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking locator directory %q: %w", p, err)
		}
	}
	sort.Strings(files)

	seen := make(map[string]string)
	var defs []schemas.LocatorDefinition
	for _, f := range files {
		loaded, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		for _, d := range loaded {
			if prev, dup := seen[d.Name]; dup {
				return nil, fmt.Errorf("%w: %q in %s and %s", ErrDuplicateLocator, d.Name, prev, f)
			}
			seen[d.Name] = f
			defs = append(defs, d)
		}
	}
	return defs, nil
}

// LoadFile reads the definitions in one file, in document order.
func LoadFile(path string) ([]schemas.LocatorDefinition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading locator file: %w", err)
	}

	var defs []schemas.LocatorDefinition
	switch format {
	case schemas.FormatYAML:
		defs, err = ParseYAML(data)
	case schemas.FormatXML:
		defs, err = ParseXML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range defs {
		defs[i].Source = schemas.SourceLocation{File: path, Format: format}
	}
	return defs, nil
}

// -- YAML --

// YAMLEntry holds the nodes of one definition under the top-level
// "locators" mapping. Strategy is nil when the entry omits it.
type YAMLEntry struct {
	Name     string
	Strategy *yaml.Node
	ValueKey *yaml.Node
	Value    *yaml.Node
}

// YAMLEntries walks a parsed document and returns its definitions in order.
//
//	locators:
//	  login_button:
//	    strategy: css
//	    value: "#login"
func YAMLEntries(doc *yaml.Node) ([]YAMLEntry, error) {
	if doc.Kind == 0 {
		return nil, nil
	}
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil, nil
		}
		doc = doc.Content[0]
	}
	if doc.Kind == yaml.ScalarNode && doc.Tag == "!!null" {
		return nil, nil
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level is not a mapping", ErrMalformedStore)
	}
	section := mappingValue(doc, "locators")
	if section == nil {
		return nil, nil
	}
	if section.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: locators is not a mapping (line %d)", ErrMalformedStore, section.Line)
	}

	entries := make([]YAMLEntry, 0, len(section.Content)/2)
	for i := 0; i+1 < len(section.Content); i += 2 {
		key, body := section.Content[i], section.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: locator %q is not a mapping (line %d)", ErrMalformedStore, key.Value, body.Line)
		}
		e := YAMLEntry{Name: key.Value, Strategy: mappingValue(body, "strategy")}
		e.ValueKey, e.Value = mappingPair(body, "value")
		if e.Value == nil || e.Value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: locator %q has no scalar value (line %d)", ErrMalformedStore, key.Value, key.Line)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	_, v := mappingPair(m, key)
	return v
}

func mappingPair(m *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i], m.Content[i+1]
		}
	}
	return nil, nil
}

// ParseYAML decodes a YAML locator store.
func ParseYAML(data []byte) ([]schemas.LocatorDefinition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStore, err)
	}
	entries, err := YAMLEntries(&doc)
	if err != nil {
		return nil, err
	}

	defs := make([]schemas.LocatorDefinition, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLocator, e.Name)
		}
		seen[e.Name] = true

		raw := string(schemas.StrategyCSS)
		if e.Strategy != nil {
			raw = e.Strategy.Value
		}
		strategy, err := schemas.ParseStrategy(raw)
		if err != nil {
			return nil, fmt.Errorf("locator %q: %w", e.Name, err)
		}
		defs = append(defs, schemas.LocatorDefinition{Name: e.Name, Strategy: strategy, Value: e.Value.Value})
	}
	return defs, nil
}

// -- XML --

// XMLEntries returns the <locator name="..."> elements of a store in order.
//
//	<locators>
//	  <locator name="login_button" strategy="css">#login</locator>
//	</locators>
func XMLEntries(doc *etree.Document) []*etree.Element {
	return doc.FindElements("//locator[@name]")
}

// ParseXML decodes an XML locator store.
func ParseXML(data []byte) ([]schemas.LocatorDefinition, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStore, err)
	}

	var defs []schemas.LocatorDefinition
	seen := make(map[string]bool)
	for _, el := range XMLEntries(doc) {
		name := el.SelectAttrValue("name", "")
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLocator, name)
		}
		seen[name] = true

		strategy, err := schemas.ParseStrategy(el.SelectAttrValue("strategy", string(schemas.StrategyCSS)))
		if err != nil {
			return nil, fmt.Errorf("locator %q: %w", name, err)
		}
		value := strings.TrimSpace(el.Text())
		if value == "" {
			return nil, fmt.Errorf("%w: locator %q has no value", ErrMalformedStore, name)
		}
		defs = append(defs, schemas.LocatorDefinition{Name: name, Strategy: strategy, Value: value})
	}
	return defs, nil
}
