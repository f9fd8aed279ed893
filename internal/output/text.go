package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dshills/rulecheck/internal/review"
)

var (
	colorHeader = color.New(color.Bold)
	colorFile   = color.New(color.FgCyan, color.Bold)
	colorRule   = color.New(color.FgYellow)
	colorError  = color.New(color.FgRed)
	colorOK     = color.New(color.FgGreen)
	colorDim    = color.New(color.Faint)
)

// TextWriter outputs a human-readable text report. Colors follow the global
// color.NoColor setting.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.println(colorHeader.Sprintf("Rule evaluation: %s mode", report.Mode))
	if report.Repo != "" {
		ew.printf("Repository: %s\n", report.Repo)
	}
	if report.Revision != "" {
		ew.printf("Revision: %s (%s)\n", shortRev(report.Revision), report.Branch)
	}
	if report.Model != "" {
		ew.printf("Model: %s\n", report.Model)
	}
	ew.println(strings.Repeat("─", 60))
	ew.printf("Rules: %d | Files: %d | Units: %d\n", s.Rules, s.Files, s.Units)
	ew.printf("Findings: %d (%d non-compliant file/rule pairs) | Errors: %d\n", s.Findings, s.NonCompliant, s.Errors)
	ew.println(strings.Repeat("─", 60))

	if len(report.Findings) == 0 && len(report.Errors) == 0 {
		ew.println("\n" + colorOK.Sprint("All evaluated files comply."))
		return ew.err
	}

	files, groups := byFile(report.Findings)
	for _, file := range files {
		ew.printf("\n%s\n", colorFile.Sprint(file))
		for _, f := range groups[file] {
			ew.printf("  %s", colorRule.Sprint(f.Rule))
			if desc := report.RuleDescription(f.Rule); desc != "" {
				ew.printf("  %s", colorDim.Sprint(desc))
			}
			ew.println("")
			for _, line := range wrapText(f.Description, 70) {
				ew.printf("    %s\n", line)
			}
			if f.Snippet != "" {
				for _, line := range strings.Split(strings.TrimRight(f.Snippet, "\n"), "\n") {
					ew.printf("    %s %s\n", colorDim.Sprint("|"), line)
				}
			}
			if f.Suggestion != "" {
				ew.println("    Suggestion:")
				for _, line := range wrapText(f.Suggestion, 68) {
					ew.printf("      %s\n", line)
				}
			}
		}
	}

	if len(report.Errors) > 0 {
		ew.printf("\n%s\n", colorError.Sprintf("Evaluation errors (%d)", len(report.Errors)))
		for _, e := range report.Errors {
			ew.printf("  %s: %s\n", e.File, e.Error)
			if len(e.Rules) > 0 {
				ew.printf("    rules: %s\n", strings.Join(e.Rules, ", "))
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms (plan: %dms, LLM: %dms)\n",
		report.Timing.TotalMs, report.Timing.PlanMs, report.Timing.LLMMs)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
