// Package catalog loads the rule catalogue: the languages, categories and
// natural-language compliance rules a repository is checked against.
//
// A catalogue document (JSON or YAML) refers to languages and categories by
// name; [Parse] resolves those names into object links and rejects duplicate
// names, dangling references and malformed glob patterns with a
// [ConfigError]. The resulting [Catalogue] is immutable and is passed
// explicitly to the detector and the evaluation engine.
//
// Rule patterns resolve with precedence rule → category → language. Include
// patterns are mandatory (see [Rule.ResolvedPatterns]); exclude patterns fall
// back to an empty set.
package catalog
