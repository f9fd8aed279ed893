package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a catalogue document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// document is the raw catalogue as written on disk. Names are resolved into
// links by Parse.
type document struct {
	Languages  []rawLanguage `json:"languages" yaml:"languages"`
	Categories []rawCategory `json:"categories" yaml:"categories"`
	Rules      []rawRule     `json:"rules" yaml:"rules"`
}

type rawLanguage struct {
	Name                   string   `json:"name" yaml:"name"`
	DefaultPatterns        []string `json:"defaultPatterns" yaml:"defaultPatterns"`
	DefaultExcludePatterns []string `json:"defaultExcludePatterns,omitempty" yaml:"defaultExcludePatterns,omitempty"`
}

type rawCategory struct {
	Name                   string   `json:"name" yaml:"name"`
	Languages              []string `json:"languages" yaml:"languages"`
	Exists                 []string `json:"exists,omitempty" yaml:"exists,omitempty"`
	DefaultPatterns        []string `json:"defaultPatterns,omitempty" yaml:"defaultPatterns,omitempty"`
	DefaultExcludePatterns []string `json:"defaultExcludePatterns,omitempty" yaml:"defaultExcludePatterns,omitempty"`
}

type rawRule struct {
	Rule            string   `json:"rule" yaml:"rule"`
	RuleDesc        string   `json:"ruleDesc" yaml:"ruleDesc"`
	Category        string   `json:"category" yaml:"category"`
	Language        string   `json:"language" yaml:"language"`
	Patterns        []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	ContextPatterns []string `json:"contextPatterns,omitempty" yaml:"contextPatterns,omitempty"`
	ExcludePatterns []string `json:"excludePatterns,omitempty" yaml:"excludePatterns,omitempty"`
}

// Load reads a catalogue file. The format is chosen from the extension:
// .yaml and .yml are YAML, anything else is JSON.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}
	return Parse(data, FormatFromPath(path))
}

// FormatFromPath guesses the catalogue format from a file name.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes a catalogue document and resolves its references.
func Parse(data []byte, format Format) (*Catalogue, error) {
	var doc document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing catalogue: %w", err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing catalogue: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalogue format: %s", format)
	}
	return resolve(doc)
}

func resolve(doc document) (*Catalogue, error) {
	cat := &Catalogue{
		Languages:  make(map[string]*Language, len(doc.Languages)),
		Categories: make(map[string]*Category, len(doc.Categories)),
		Rules:      make([]*Rule, 0, len(doc.Rules)),
	}

	for _, rl := range doc.Languages {
		if rl.Name == "" {
			return nil, configErrorf("", "language with empty name")
		}
		if _, dup := cat.Languages[rl.Name]; dup {
			return nil, configErrorf("", "duplicate language %q", rl.Name)
		}
		if err := checkPatterns("language "+rl.Name, rl.DefaultPatterns, rl.DefaultExcludePatterns); err != nil {
			return nil, err
		}
		cat.Languages[rl.Name] = &Language{
			Name:                   rl.Name,
			DefaultPatterns:        rl.DefaultPatterns,
			DefaultExcludePatterns: rl.DefaultExcludePatterns,
		}
	}

	for _, rc := range doc.Categories {
		if rc.Name == "" {
			return nil, configErrorf("", "category with empty name")
		}
		if _, dup := cat.Categories[rc.Name]; dup {
			return nil, configErrorf("", "duplicate category %q", rc.Name)
		}
		if err := checkPatterns("category "+rc.Name, rc.Exists, rc.DefaultPatterns, rc.DefaultExcludePatterns); err != nil {
			return nil, err
		}
		c := &Category{
			Name:                   rc.Name,
			Exists:                 rc.Exists,
			DefaultPatterns:        rc.DefaultPatterns,
			DefaultExcludePatterns: rc.DefaultExcludePatterns,
		}
		for _, name := range rc.Languages {
			lang, ok := cat.Languages[name]
			if !ok {
				return nil, configErrorf("", "category %q references unknown language %q", rc.Name, name)
			}
			c.Languages = append(c.Languages, lang)
		}
		cat.Categories[rc.Name] = c
	}

	seen := make(map[string]bool, len(doc.Rules))
	for _, rr := range doc.Rules {
		if rr.Rule == "" {
			return nil, configErrorf("", "rule with empty id")
		}
		if seen[rr.Rule] {
			return nil, configErrorf(rr.Rule, "duplicate rule id")
		}
		seen[rr.Rule] = true

		category, ok := cat.Categories[rr.Category]
		if !ok {
			return nil, configErrorf(rr.Rule, "unknown category %q", rr.Category)
		}
		lang, ok := cat.Languages[rr.Language]
		if !ok {
			return nil, configErrorf(rr.Rule, "unknown language %q", rr.Language)
		}
		if err := checkPatterns("rule "+rr.Rule, rr.Patterns, rr.ContextPatterns, rr.ExcludePatterns); err != nil {
			return nil, err
		}
		cat.Rules = append(cat.Rules, &Rule{
			ID:              rr.Rule,
			Description:     rr.RuleDesc,
			Category:        category,
			Language:        lang,
			Patterns:        rr.Patterns,
			ContextPatterns: rr.ContextPatterns,
			ExcludePatterns: rr.ExcludePatterns,
		})
	}

	return cat, nil
}

func checkPatterns(owner string, groups ...[]string) error {
	for _, group := range groups {
		for _, p := range group {
			if !doublestar.ValidatePattern(p) {
				return configErrorf("", "%s: invalid glob pattern %q", owner, p)
			}
		}
	}
	return nil
}
