package detect

import (
	"sort"
	"sync"

	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/files"
)

// Detector determines the languages, categories and rules applicable to a
// file set. Each property is computed on first access and then cached.
type Detector struct {
	files *files.Manager
	cat   *catalog.Catalogue

	langOnce  sync.Once
	languages []*catalog.Language

	catOnce    sync.Once
	categories []*catalog.Category

	rulesOnce    sync.Once
	simpleRules  []*catalog.Rule
	contextRules []*catalog.Rule
}

// New creates a Detector for the given file set and catalogue.
func New(fm *files.Manager, cat *catalog.Catalogue) *Detector {
	return &Detector{files: fm, cat: cat}
}

// Files returns the file set the detector works on.
func (d *Detector) Files() *files.Manager { return d.files }

// Catalogue returns the catalogue the detector works on.
func (d *Detector) Catalogue() *catalog.Catalogue { return d.cat }

// Languages returns every language with at least one file matching one of
// its include patterns, sorted by name.
func (d *Detector) Languages() []*catalog.Language {
	d.langOnce.Do(func() {
		d.languages = []*catalog.Language{}
		for _, name := range sortedKeys(d.cat.Languages) {
			lang := d.cat.Languages[name]
			if d.files.AnyMatch(lang.DefaultPatterns) {
				d.languages = append(d.languages, lang)
			}
		}
	})
	return d.languages
}

// Categories returns every category whose exists patterns match at least one
// file and whose declared languages intersect Languages, sorted by name.
func (d *Detector) Categories() []*catalog.Category {
	d.catOnce.Do(func() {
		detected := d.languageSet()
		d.categories = []*catalog.Category{}
		for _, name := range sortedKeys(d.cat.Categories) {
			c := d.cat.Categories[name]
			if !intersects(c.Languages, detected) {
				continue
			}
			if d.files.AnyMatch(c.Exists) {
				d.categories = append(d.categories, c)
			}
		}
	})
	return d.categories
}

// SimpleRules returns the applicable rules that are evaluated against a
// single file, in catalogue order.
func (d *Detector) SimpleRules() []*catalog.Rule {
	d.partition()
	return d.simpleRules
}

// ContextRules returns the applicable rules that need supporting files, in
// catalogue order.
func (d *Detector) ContextRules() []*catalog.Rule {
	d.partition()
	return d.contextRules
}

func (d *Detector) partition() {
	d.rulesOnce.Do(func() {
		langs := d.languageSet()
		cats := make(map[string]bool)
		for _, c := range d.Categories() {
			cats[c.Name] = true
		}
		d.simpleRules = []*catalog.Rule{}
		d.contextRules = []*catalog.Rule{}
		for _, r := range d.cat.Rules {
			if r.Language == nil || r.Category == nil {
				continue
			}
			if !langs[r.Language.Name] || !cats[r.Category.Name] {
				continue
			}
			if r.IsContextRule() {
				d.contextRules = append(d.contextRules, r)
			} else {
				d.simpleRules = append(d.simpleRules, r)
			}
		}
	})
}

func (d *Detector) languageSet() map[string]bool {
	set := make(map[string]bool)
	for _, l := range d.Languages() {
		set[l.Name] = true
	}
	return set
}

func intersects(langs []*catalog.Language, set map[string]bool) bool {
	for _, l := range langs {
		if set[l.Name] {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
