package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/rulecheck/internal/review"
)

// JSONWriter outputs the full report as JSON.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, report *review.Report) error {
	r := *report
	if r.Findings == nil {
		r.Findings = []review.Finding{}
	}
	if r.Errors == nil {
		r.Errors = []review.EvaluationError{}
	}
	data, err := json.MarshalIndent(&r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
