package cli

import (
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Submit batch jobs and process their output",
}

var batchSubmitCmd = &cobra.Command{
	Use:   "submit <repo>",
	Short: "Write invocation manifests for a repository and spool the job",
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
		sub, jobID, err := e.SubmitBatch(ctx, units, flagPrefix)
		if err != nil {
			return runtimeErr(err)
		}
		printSubmission(cmd, sub, jobID, flagPrefix)
		return nil
	},
}

var batchProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Turn the output of a finished batch job into a report",
	Long: "Process reads every manifest output under --prefix, skips records already " +
		"handled by an earlier run, persists the record state and writes findings.json " +
		"and errors.json next to the job.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.engine("")
		if err != nil {
			return err
		}
		report, err := e.ProcessBatch(cmd.Context(), flagPrefix)
		if err != nil {
			return runtimeErr(err)
		}
		return a.writeReport(cmd, report)
	},
}

func init() {
	addEvalFlags(batchSubmitCmd)
	addScopeFlags(batchSubmitCmd)
	addStoreFlags(batchSubmitCmd, true)

	addEvalFlags(batchProcessCmd)
	addStoreFlags(batchProcessCmd, true)

	batchCmd.AddCommand(batchSubmitCmd)
	batchCmd.AddCommand(batchProcessCmd)
}
