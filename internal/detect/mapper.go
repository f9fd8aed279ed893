package detect

import (
	"sort"
	"sync"

	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/files"
)

// Unit is one (file, rule) pair to evaluate.
type Unit struct {
	File string
	Rule *catalog.Rule
}

// Mapper resolves the concrete files each simple rule applies to.
type Mapper struct {
	d *Detector

	once      sync.Once
	ruleFiles map[string][]string
	byFile    map[string][]*catalog.Rule
	err       error
}

// NewMapper creates a Mapper over the detector's simple rules.
func NewMapper(d *Detector) *Mapper {
	return &Mapper{d: d}
}

func (m *Mapper) build() {
	m.once.Do(func() {
		m.ruleFiles = make(map[string][]string)
		m.byFile = make(map[string][]*catalog.Rule)
		for _, r := range m.d.SimpleRules() {
			include, err := r.ResolvedPatterns()
			if err != nil {
				m.err = err
				m.ruleFiles, m.byFile = nil, nil
				return
			}
			exclude := r.ResolvedExcludePatterns()

			var matched []string
			for _, f := range m.d.Files().Match(include) {
				if len(exclude) > 0 && files.MatchesAny(f, exclude) {
					continue
				}
				matched = append(matched, f)
			}
			if len(matched) == 0 {
				continue
			}
			m.ruleFiles[r.ID] = matched
			for _, f := range matched {
				m.byFile[f] = append(m.byFile[f], r)
			}
		}
	})
}

// RuleFiles maps each simple rule id to the files it applies to: files
// matching an include pattern minus files matching an exclude pattern.
// Rules with no files are absent.
func (m *Mapper) RuleFiles() (map[string][]string, error) {
	m.build()
	return m.ruleFiles, m.err
}

// RulesByFile maps each file to the simple rules that apply to it, in
// catalogue order. Files without rules are absent.
func (m *Mapper) RulesByFile() (map[string][]*catalog.Rule, error) {
	m.build()
	return m.byFile, m.err
}

// Units flattens RulesByFile into evaluation units ordered by file, then by
// catalogue rule order.
func (m *Mapper) Units() ([]Unit, error) {
	byFile, err := m.RulesByFile()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(byFile))
	for f := range byFile {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	var units []Unit
	for _, f := range paths {
		for _, r := range byFile[f] {
			units = append(units, Unit{File: f, Rule: r})
		}
	}
	return units, nil
}
