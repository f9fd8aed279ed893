package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
	ExitConfigError  = 5
)

// Global flags
var (
	flagConfigPath  string
	flagLogLevel    string
	flagMetricsFile string
	flagNoColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "rulecheck",
	Short: "Evaluate natural-language rules against a repository with an LLM",
	Long: "Rulecheck matches a rule catalogue against a repository and asks a model to judge " +
		"each (file, rule) pair, synchronously for small runs or through batch inference.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			color.NoColor = true
		}
	},
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// Run executes the root command and returns an exit code.
func Run() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	exitCode = ExitSuccess
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		code := exitCodeFor(err)
		printError(stderr, err, code)
		return code
	}
	return exitCode
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print rulecheck version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rulecheck version %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "Config file (default: user config dir)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	pf.BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}
