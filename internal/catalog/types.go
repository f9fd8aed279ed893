package catalog

// Language is a detection dimension with default include/exclude globs.
type Language struct {
	Name                   string
	DefaultPatterns        []string
	DefaultExcludePatterns []string
}

// Category groups rules and is detected through its Exists globs.
type Category struct {
	Name                   string
	Languages              []*Language
	Exists                 []string
	DefaultPatterns        []string
	DefaultExcludePatterns []string
}

// HasLanguage reports whether the category declares the named language.
func (c *Category) HasLanguage(name string) bool {
	for _, l := range c.Languages {
		if l.Name == name {
			return true
		}
	}
	return false
}

// Rule is one natural-language compliance check.
type Rule struct {
	ID              string
	Description     string
	Category        *Category
	Language        *Language
	Patterns        []string
	ContextPatterns []string
	ExcludePatterns []string
}

// ResolvedPatterns returns the include globs for the rule, taken from the
// first non-empty level of rule, category and language. A rule with no
// patterns at any level can never be evaluated and yields a *ConfigError.
func (r *Rule) ResolvedPatterns() ([]string, error) {
	if len(r.Patterns) > 0 {
		return r.Patterns, nil
	}
	if r.Category != nil && len(r.Category.DefaultPatterns) > 0 {
		return r.Category.DefaultPatterns, nil
	}
	if r.Language != nil && len(r.Language.DefaultPatterns) > 0 {
		return r.Language.DefaultPatterns, nil
	}
	return nil, configErrorf(r.ID, "no patterns defined on rule, category or language")
}

// ResolvedExcludePatterns returns the exclude globs with the same precedence
// as ResolvedPatterns. It never fails; the result may be empty.
func (r *Rule) ResolvedExcludePatterns() []string {
	if len(r.ExcludePatterns) > 0 {
		return r.ExcludePatterns
	}
	if r.Category != nil && len(r.Category.DefaultExcludePatterns) > 0 {
		return r.Category.DefaultExcludePatterns
	}
	if r.Language != nil && len(r.Language.DefaultExcludePatterns) > 0 {
		return r.Language.DefaultExcludePatterns
	}
	return []string{}
}

// IsContextRule reports whether the rule needs supporting files beyond the
// one being judged.
func (r *Rule) IsContextRule() bool {
	return len(r.ContextPatterns) > 0
}

// Catalogue is the resolved rule catalogue for one evaluation run.
type Catalogue struct {
	Languages  map[string]*Language
	Categories map[string]*Category
	Rules      []*Rule
}

// Rule returns the rule with the given id.
func (c *Catalogue) Rule(id string) (*Rule, bool) {
	for _, r := range c.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Validate resolves the include patterns of every rule and returns the first
// failure. Call it before evaluation to fail fast.
func (c *Catalogue) Validate() error {
	for _, r := range c.Rules {
		if _, err := r.ResolvedPatterns(); err != nil {
			return err
		}
	}
	return nil
}
