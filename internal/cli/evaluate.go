package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/rulecheck/internal/batch"
	"github.com/dshills/rulecheck/internal/review"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <repo>",
	Short: "Evaluate every applicable (file, rule) pair synchronously",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.engine(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		units, err := e.Plan(ctx)
		if err != nil {
			return runtimeErr(err)
		}
		report, err := e.EvaluateSync(ctx, units)
		if err != nil {
			return runtimeErr(err)
		}
		return a.writeReport(cmd, report)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <repo>",
	Short: "Evaluate synchronously or submit a batch job, depending on size",
	Long: "Run plans the evaluation and evaluates synchronously when the number of " +
		"(file, rule) units is at most syncThreshold; otherwise it writes batch manifests " +
		"under --prefix and spools a job for the batch inference facility.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.engine(args[0])
		if err != nil {
			return err
		}
		res, err := e.Run(cmd.Context(), flagPrefix)
		if err != nil {
			return runtimeErr(err)
		}
		if res.Mode == review.ModeSync {
			return a.writeReport(cmd, res.Report)
		}
		printSubmission(cmd, res.Submission, res.JobID, res.Prefix)
		return nil
	},
}

func printSubmission(cmd *cobra.Command, sub *batch.Submission, jobID, prefix string) {
	w := cmd.OutOrStdout()
	if jobID == "" {
		fmt.Fprintf(w, "Nothing submitted: no file could be read\n")
		fmt.Fprintf(w, "  prefix:    %s\n", prefix)
	} else {
		fmt.Fprintf(w, "Submitted batch job %s\n", jobID)
		fmt.Fprintf(w, "  prefix:    %s\n", prefix)
		fmt.Fprintf(w, "  manifests: %d\n", len(sub.ManifestKeys))
		fmt.Fprintf(w, "  records:   %d\n", sub.RecordCount)
	}
	if len(sub.Errors) > 0 {
		fmt.Fprintf(w, "  unreadable files: %d\n", len(sub.Errors))
		for _, e := range sub.Errors {
			fmt.Fprintf(w, "    %s: %s\n", e.File, e.Error)
		}
	}
	if jobID != "" {
		fmt.Fprintf(w, "\nWhen the job has finished, run:\n  rulecheck batch process --prefix %s\n", prefix)
	}
}

func init() {
	addEvalFlags(evaluateCmd)
	addScopeFlags(evaluateCmd)

	addEvalFlags(runCmd)
	addScopeFlags(runCmd)
	addStoreFlags(runCmd, false)
}
