package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/detect"
)

// detectResult is the JSON shape of `rulecheck detect --format json`.
type detectResult struct {
	Files        int                 `json:"files"`
	Languages    []string            `json:"languages"`
	Categories   []string            `json:"categories"`
	SimpleRules  []string            `json:"simpleRules"`
	ContextRules []string            `json:"contextRules"`
	RuleFiles    map[string][]string `json:"ruleFiles"`
}

var detectCmd = &cobra.Command{
	Use:   "detect <repo>",
	Short: "Show the languages, categories and rules that apply to a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cat, err := a.loadCatalogue(true)
		if err != nil {
			return err
		}
		if err := cat.Validate(); err != nil {
			return err
		}
		fm, err := a.scan(args[0])
		if err != nil {
			return err
		}

		d := detect.New(fm, cat)
		ruleFiles, err := detect.NewMapper(d).RuleFiles()
		if err != nil {
			return err
		}
		res := detectResult{
			Files:        fm.Len(),
			Languages:    []string{},
			Categories:   []string{},
			SimpleRules:  ruleIDs(d.SimpleRules()),
			ContextRules: ruleIDs(d.ContextRules()),
			RuleFiles:    ruleFiles,
		}
		for _, l := range d.Languages() {
			res.Languages = append(res.Languages, l.Name)
		}
		for _, c := range d.Categories() {
			res.Categories = append(res.Categories, c.Name)
		}

		if a.cfg.Format == "json" {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return runtimeErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		writeDetectText(cmd.OutOrStdout(), res)
		return nil
	},
}

func writeDetectText(w io.Writer, res detectResult) {
	fmt.Fprintf(w, "Files:         %d\n", res.Files)
	fmt.Fprintf(w, "Languages:     %s\n", listOrNone(res.Languages))
	fmt.Fprintf(w, "Categories:    %s\n", listOrNone(res.Categories))
	fmt.Fprintf(w, "Simple rules:  %s\n", listOrNone(res.SimpleRules))
	fmt.Fprintf(w, "Context rules: %s\n", listOrNone(res.ContextRules))
	if len(res.RuleFiles) == 0 {
		return
	}
	fmt.Fprintln(w)
	ids := make([]string, 0, len(res.RuleFiles))
	for id := range res.RuleFiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "%s (%d files)\n", id, len(res.RuleFiles[id]))
		for _, f := range res.RuleFiles[id] {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}

func ruleIDs(rules []*catalog.Rule) []string {
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func init() {
	detectCmd.Flags().StringVar(&flagCatalogue, "catalogue", "", "Rule catalogue file (JSON or YAML)")
	detectCmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json)")
	addScopeFlags(detectCmd)
}
