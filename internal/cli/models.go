package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/rulecheck/internal/providers"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Supported model families and credential checks",
}

// exampleModels lists well-known identifiers per family. Any identifier of
// a registered family works; an optional region tag such as "us." may
// prefix it.
var exampleModels = map[providers.Family][]string{
	providers.FamilyAnthropic: {
		"anthropic.claude-sonnet-4-20250514-v1:0",
		"anthropic.claude-3-7-sonnet-20250219-v1:0",
		"anthropic.claude-3-5-haiku-20241022-v1:0",
	},
	providers.FamilyAmazon: {
		"amazon.nova-pro-v1:0",
		"amazon.nova-lite-v1:0",
		"amazon.nova-micro-v1:0",
	},
	providers.FamilyOpenAI: {
		"openai.gpt-oss-120b-1:0",
		"openai.gpt-oss-20b-1:0",
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported model families with example identifiers",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		families := providers.DefaultRegistry().Families()
		sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })
		for _, f := range families {
			fmt.Fprintf(w, "%s:\n", f)
			for _, m := range exampleModels[f] {
				fmt.Fprintf(w, "  - %s\n", m)
			}
			fmt.Fprintln(w)
		}
	},
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured model is supported and responding",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		w := cmd.OutOrStdout()
		model := a.cfg.Model
		fmt.Fprintf(w, "Checking %s...\n", model)

		reg := providers.DefaultRegistry()
		if _, err := reg.Adapter(model); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		_, err = a.client(reg).Complete(ctx, model, providers.Prompt{
			System:    "Respond with exactly: ok",
			User:      "ping",
			MaxTokens: 10,
		})
		if err != nil {
			return runtimeErr(err)
		}
		fmt.Fprintf(w, "OK: %s is configured and responding\n", model)
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
	modelsDoctorCmd.Flags().StringVar(&flagModel, "model", "", "Model to check")
}
