package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/providers"
)

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorFix   = color.New(color.FgGreen)
)

// exitError carries the exit code a command failure maps to.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: ExitConfigError, err: err}
}

// runtimeErr marks err as a runtime failure unless it already classifies as
// a configuration or authentication problem.
func runtimeErr(err error) error {
	if err == nil || isConfigProblem(err) || providers.IsAuthError(err) {
		return err
	}
	return &exitError{code: ExitRuntimeError, err: err}
}

func isConfigProblem(err error) bool {
	return catalog.IsConfigError(err) || providers.IsUnsupportedModel(err)
}

// exitCodeFor classifies an error returned from command execution. Errors
// cobra produces itself (unknown flags, wrong arguments) are usage errors.
func exitCodeFor(err error) int {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case isConfigProblem(err):
		return ExitConfigError
	case providers.IsAuthError(err):
		return ExitAuthError
	default:
		return ExitUsageError
	}
}

func printError(w io.Writer, err error, code int) {
	fmt.Fprintf(w, "%s%v\n", colorError.Sprint("Error: "), err)
	if fix := hintFor(err, code); fix != "" {
		fmt.Fprintf(w, "%s%s\n", colorFix.Sprint("Fix:   "), fix)
	}
}

func hintFor(err error, code int) string {
	switch {
	case providers.IsAuthError(err):
		return "export RULECHECK_API_KEY with a key for the model endpoint"
	case providers.IsUnsupportedModel(err):
		return "run 'rulecheck models list' for the supported model families"
	case catalog.IsConfigError(err):
		return "every rule needs patterns on the rule, its category or its language"
	case code == ExitUsageError:
		return "run 'rulecheck --help' for usage"
	}
	return ""
}
