package output

import (
	"io"
	"path"
	"strings"

	"github.com/dshills/rulecheck/internal/review"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.printf("## Rule Evaluation\n\n")
	ew.printf("| Metric | Count |\n")
	ew.printf("|--------|-------|\n")
	ew.printf("| Rules | %d |\n", s.Rules)
	ew.printf("| Files | %d |\n", s.Files)
	ew.printf("| Findings | %d |\n", s.Findings)
	ew.printf("| Errors | %d |\n\n", s.Errors)

	if len(report.Findings) == 0 && len(report.Errors) == 0 {
		ew.println("All evaluated files comply. :white_check_mark:")
		return ew.err
	}

	files, groups := byFile(report.Findings)
	for _, file := range files {
		findings := groups[file]
		ew.printf("<details>\n<summary><code>%s</code> (%d)</summary>\n\n", file, len(findings))
		for _, f := range findings {
			ew.printf("### %s\n\n", f.Rule)
			if desc := report.RuleDescription(f.Rule); desc != "" {
				ew.printf("> %s\n\n", strings.ReplaceAll(desc, "\n", "\n> "))
			}
			ew.printf("%s\n\n", f.Description)
			if f.Snippet != "" {
				ew.printf("```%s\n%s\n```\n\n", fenceLang(file), strings.TrimRight(f.Snippet, "\n"))
			}
			if f.Suggestion != "" {
				ew.printf("**Suggestion:** %s\n\n", f.Suggestion)
			}
			ew.printf("---\n\n")
		}
		ew.printf("</details>\n\n")
	}

	if len(report.Errors) > 0 {
		ew.printf("### Evaluation errors\n\n")
		for _, e := range report.Errors {
			ew.printf("- `%s`: %s", e.File, e.Error)
			if len(e.Rules) > 0 {
				ew.printf(" (rules: %s)", strings.Join(e.Rules, ", "))
			}
			ew.println("")
		}
		ew.println("")
	}

	ew.printf("*Evaluated in %dms (plan: %dms, LLM: %dms)*\n",
		report.Timing.TotalMs, report.Timing.PlanMs, report.Timing.LLMMs)
	return ew.err
}

func fenceLang(file string) string {
	switch path.Ext(file) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".yaml", ".yml":
		return "yaml"
	case ".sh":
		return "bash"
	default:
		return ""
	}
}
