package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/rulecheck/internal/review"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *review.Report) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown":
		return &MarkdownWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to outPath, or to stdout when outPath is empty.
func WriteReport(report *review.Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}
	if outPath == "" {
		return writer.Write(os.Stdout, report)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// byFile groups findings by file, keeping file order of first appearance.
func byFile(findings []review.Finding) ([]string, map[string][]review.Finding) {
	var order []string
	groups := make(map[string][]review.Finding)
	for _, f := range findings {
		if _, ok := groups[f.File]; !ok {
			order = append(order, f.File)
		}
		groups[f.File] = append(groups[f.File], f)
	}
	return order, groups
}
