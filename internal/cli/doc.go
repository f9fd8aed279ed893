// Package cli wires together the Cobra command tree for the rulecheck binary.
//
// It defines the root command and all subcommands (detect, evaluate, run,
// batch, config, models, cache, version), binds flags, reads configuration,
// builds the evaluation engine, and returns deterministic exit codes for CI
// gating.
package cli
