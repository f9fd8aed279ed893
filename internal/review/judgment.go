package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Judgment is the model's verdict on one file for one rule.
type Judgment struct {
	Compliant bool
	Findings  []Finding
}

// rawJudgment is the JSON structure returned by the model.
type rawJudgment struct {
	Compliant *bool        `json:"compliant"`
	Findings  []rawFinding `json:"findings"`
}

type rawFinding struct {
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// ParseJudgment extracts a Judgment from model output. Rule and File of the
// returned findings are empty; see [Judgment.For].
func ParseJudgment(content string) (Judgment, error) {
	content = stripFences(strings.TrimSpace(content))
	if content == "" {
		return Judgment{}, errors.New("empty judgment")
	}

	if strings.HasPrefix(content, "[") {
		var raw []rawFinding
		if err := json.Unmarshal([]byte(content), &raw); err != nil {
			return Judgment{}, fmt.Errorf("invalid findings array: %w", err)
		}
		return buildJudgment(nil, raw), nil
	}

	raw, err := decodeObject(content)
	if err != nil {
		// Models sometimes wrap the object in prose.
		start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return Judgment{}, fmt.Errorf("invalid judgment JSON: %w", err)
		}
		raw, err = decodeObject(content[start : end+1])
		if err != nil {
			return Judgment{}, fmt.Errorf("invalid judgment JSON: %w", err)
		}
	}
	if raw.Compliant == nil && raw.Findings == nil {
		return Judgment{}, errors.New("judgment has neither compliant nor findings")
	}
	return buildJudgment(raw.Compliant, raw.Findings), nil
}

func decodeObject(s string) (rawJudgment, error) {
	var raw rawJudgment
	err := json.Unmarshal([]byte(s), &raw)
	return raw, err
}

func buildJudgment(compliant *bool, raw []rawFinding) Judgment {
	j := Judgment{Findings: make([]Finding, 0, len(raw))}
	for _, r := range raw {
		j.Findings = append(j.Findings, Finding{
			Snippet:     r.Snippet,
			Description: r.Description,
			Suggestion:  r.Suggestion,
		})
	}
	if compliant != nil {
		j.Compliant = *compliant
	} else {
		j.Compliant = len(j.Findings) == 0
	}
	return j
}

// For returns the judgment's findings attributed to a rule and file.
func (j Judgment) For(rule, file string) []Finding {
	out := make([]Finding, len(j.Findings))
	for i, f := range j.Findings {
		f.Rule = rule
		f.File = file
		out[i] = f
	}
	return out
}

// stripFences removes a surrounding markdown code fence.
func stripFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return strings.Trim(content, "`")
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}
