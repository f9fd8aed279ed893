package review

import (
	"sort"
	"strings"
)

// Finding is one rule violation reported by the model.
type Finding struct {
	Rule        string `json:"rule"`
	File        string `json:"file"`
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// EvaluationError records a file that could not be judged and the rules that
// were being evaluated against it.
type EvaluationError struct {
	File  string   `json:"file"`
	Error string   `json:"error"`
	Rules []string `json:"rules"`
}

// Summary provides an overview of a run.
type Summary struct {
	Rules    int `json:"rules"`
	Files    int `json:"files"`
	Units    int `json:"units"`
	Findings int `json:"findings"`
	Errors   int `json:"errors"`
	// NonCompliant counts distinct (file, rule) pairs with at least one finding.
	NonCompliant int `json:"nonCompliant"`
}

// Timing contains performance metrics.
type Timing struct {
	PlanMs  int64 `json:"planMs"`
	LLMMs   int64 `json:"llmMs"`
	TotalMs int64 `json:"totalMs"`
}

// RuleInfo describes a catalogue rule that took part in a run.
type RuleInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// Report is the top-level output structure.
type Report struct {
	Tool     string            `json:"tool"`
	Version  string            `json:"version"`
	RunID    string            `json:"runId"`
	Model    string            `json:"model"`
	Mode     string            `json:"mode"`
	Repo     string            `json:"repo,omitempty"`
	Revision string            `json:"revision,omitempty"`
	Branch   string            `json:"branch,omitempty"`
	Rules    []RuleInfo        `json:"rules,omitempty"`
	Summary  Summary           `json:"summary"`
	Findings []Finding         `json:"findings"`
	Errors   []EvaluationError `json:"errors"`
	Timing   Timing            `json:"timing"`
}

// RuleDescription returns the description of the rule with the given id, or
// the empty string.
func (r *Report) RuleDescription(id string) string {
	for _, ri := range r.Rules {
		if ri.ID == id {
			return ri.Description
		}
	}
	return ""
}

// Run modes.
const (
	ModeSync  = "sync"
	ModeBatch = "batch"
)

// ComputeSummary counts findings and errors. Rule, file and unit counts are
// filled in by the caller, which knows the plan.
func ComputeSummary(findings []Finding, errs []EvaluationError) Summary {
	s := Summary{Findings: len(findings), Errors: len(errs)}
	pairs := make(map[[2]string]bool)
	for _, f := range findings {
		pairs[[2]string{f.File, f.Rule}] = true
	}
	s.NonCompliant = len(pairs)
	return s
}

// SortFindings orders findings by file, then rule, keeping the model's order
// within a (file, rule) pair.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		return findings[i].Rule < findings[j].Rule
	})
}

// SortErrors orders evaluation errors by file, then by their rule list.
func SortErrors(errs []EvaluationError) {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].File != errs[j].File {
			return errs[i].File < errs[j].File
		}
		return strings.Join(errs[i].Rules, ",") < strings.Join(errs[j].Rules, ",")
	})
}
