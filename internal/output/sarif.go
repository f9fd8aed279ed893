package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/rulecheck/internal/review"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

// SARIFWriter outputs findings in SARIF v2.1.0 format.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *review.Report) error {
	data, err := json.MarshalIndent(buildSARIF(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool                     sarifTool          `json:"tool"`
	Invocations              []sarifInvocation  `json:"invocations,omitempty"`
	VersionControlProvenance []sarifVersionCtrl `json:"versionControlProvenance,omitempty"`
	Results                  []sarifResult      `json:"results"`
}

type sarifVersionCtrl struct {
	RepositoryURI string `json:"repositoryUri"`
	RevisionID    string `json:"revisionId,omitempty"`
	Branch        string `json:"branch,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
	Properties       *sarifProperties   `json:"properties,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifProperties struct {
	Tags []string `json:"tags,omitempty"`
}

type sarifInvocation struct {
	ExecutionSuccessful        bool                `json:"executionSuccessful"`
	ToolExecutionNotifications []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
	Fixes     []sarifFix      `json:"fixes,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

// sarifRegion carries the offending snippet; findings have no line numbers.
type sarifRegion struct {
	Snippet sarifMessage `json:"snippet"`
}

type sarifFix struct {
	Description sarifMessage `json:"description"`
}

func buildSARIF(report *review.Report) sarifLog {
	var rules []sarifRule
	known := make(map[string]bool)
	addRule := func(id, desc, category string) {
		if known[id] {
			return
		}
		known[id] = true
		if desc == "" {
			desc = id
		}
		r := sarifRule{
			ID:               id,
			ShortDescription: sarifMessage{Text: desc},
			DefaultConfig:    sarifDefaultConfig{Level: "warning"},
		}
		if category != "" {
			r.Properties = &sarifProperties{Tags: []string{category}}
		}
		rules = append(rules, r)
	}
	for _, ri := range report.Rules {
		addRule(ri.ID, ri.Description, ri.Category)
	}

	results := []sarifResult{}
	for _, f := range report.Findings {
		addRule(f.Rule, "", "")
		loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: f.File},
		}}
		if f.Snippet != "" {
			loc.PhysicalLocation.Region = &sarifRegion{Snippet: sarifMessage{Text: f.Snippet}}
		}
		result := sarifResult{
			RuleID:    f.Rule,
			Level:     "warning",
			Message:   sarifMessage{Text: f.Description},
			Locations: []sarifLocation{loc},
		}
		if f.Suggestion != "" {
			result.Fixes = []sarifFix{{Description: sarifMessage{Text: f.Suggestion}}}
		}
		results = append(results, result)
	}

	inv := sarifInvocation{ExecutionSuccessful: true}
	for _, e := range report.Errors {
		msg := e.Error
		if len(e.Rules) > 0 {
			msg = fmt.Sprintf("%s (rules: %v)", e.Error, e.Rules)
		}
		inv.ToolExecutionNotifications = append(inv.ToolExecutionNotifications, sarifNotification{
			Level:   "error",
			Message: sarifMessage{Text: msg},
			Locations: []sarifLocation{{PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: e.File},
			}}},
		})
	}

	if rules == nil {
		rules = []sarifRule{}
	}
	var vcs []sarifVersionCtrl
	if report.Revision != "" {
		vcs = []sarifVersionCtrl{{RepositoryURI: report.Repo, RevisionID: report.Revision, Branch: report.Branch}}
	}
	return sarifLog{
		Version: "2.1.0",
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    "rulecheck",
				Version: report.Version,
				Rules:   rules,
			}},
			Invocations:              []sarifInvocation{inv},
			VersionControlProvenance: vcs,
			Results:                  results,
		}},
	}
}
