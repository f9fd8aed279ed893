package review

import (
	"fmt"
	"path"
	"strings"

	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/providers"
	"github.com/dshills/rulecheck/internal/redact"
)

const systemPrompt = `You are a strict, expert code compliance reviewer. You judge one source file against exactly one compliance rule.

Rules:
1. Judge only the rule you are given. Ignore every other concern, however serious.
2. Judge only the file you are given. Do not speculate about code you cannot see.
3. A file is compliant when nothing in it violates the rule. Absence of relevant code is compliant.
4. Report each violation separately, quoting the offending code verbatim in "snippet".
5. Every finding must include a concrete suggestion.

You MUST respond with ONLY a JSON object. No markdown, no explanation, no preamble.

The object must have this exact structure:
{
  "compliant": true|false,
  "findings": [
    {
      "snippet": "the offending code, copied from the file",
      "description": "how this code violates the rule",
      "suggestion": "how to fix it, with code if helpful"
    }
  ]
}

If the file is compliant, respond with: {"compliant": true, "findings": []}`

// SystemPrompt returns the system prompt for rule evaluation.
func SystemPrompt() string {
	return systemPrompt
}

// BuildRulePrompt constructs the prompt that asks a model to judge contents
// of the file at path against rule.
func BuildRulePrompt(rule *catalog.Rule, path, contents string) providers.Prompt {
	var b strings.Builder

	b.WriteString("Evaluate the following file against one compliance rule.\n\n")
	fmt.Fprintf(&b, "Rule ID: %s\n", rule.ID)
	fmt.Fprintf(&b, "Rule: %s\n", strings.TrimSpace(rule.Description))
	if rule.Category != nil {
		fmt.Fprintf(&b, "Category: %s\n", rule.Category.Name)
	}
	fmt.Fprintf(&b, "File: %s\n", path)
	if lang := languageHint(rule, path); lang != "" {
		fmt.Fprintf(&b, "Language: %s\n", lang)
	}

	b.WriteString("\n--- BEGIN FILE ---\n")
	b.WriteString(contents)
	if !strings.HasSuffix(contents, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("--- END FILE ---\n")

	return providers.Prompt{System: systemPrompt, User: b.String()}
}

// Prompter builds rule prompts with generation parameters and redaction
// applied.
type Prompter struct {
	MaxTokens   int
	Temperature float64
	Redactor    *redact.Redactor
}

// Prompt redacts contents and builds the prompt for one (file, rule) pair.
func (p Prompter) Prompt(rule *catalog.Rule, file, contents string) providers.Prompt {
	pr := BuildRulePrompt(rule, file, p.Redactor.Apply(file, contents))
	pr.MaxTokens = p.MaxTokens
	pr.Temperature = p.Temperature
	return pr
}

var extLanguages = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript/React",
	".jsx":   "JavaScript/React",
	".rs":    "Rust",
	".java":  "Java",
	".rb":    "Ruby",
	".cpp":   "C++",
	".c":     "C",
	".h":     "C/C++",
	".cs":    "C#",
	".php":   "PHP",
	".swift": "Swift",
	".kt":    "Kotlin",
	".sql":   "SQL",
	".sh":    "Shell",
	".yaml":  "YAML",
	".yml":   "YAML",
	".json":  "JSON",
	".tf":    "Terraform",
}

// languageHint prefers the file extension and falls back to the rule's
// catalogue language.
func languageHint(rule *catalog.Rule, file string) string {
	if lang, ok := extLanguages[strings.ToLower(path.Ext(file))]; ok {
		return lang
	}
	if rule.Language != nil {
		return rule.Language.Name
	}
	return ""
}
