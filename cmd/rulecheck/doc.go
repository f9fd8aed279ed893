// Rulecheck evaluates a catalogue of natural-language rules against a
// repository with an LLM.
//
// Small runs are evaluated synchronously; large runs are written as batch
// inference manifests and processed once the batch job has finished, with
// idempotent resume across partial runs.
//
// Usage:
//
//	rulecheck detect <repo> --catalogue rules.yaml   # show what applies
//	rulecheck evaluate <repo>                        # synchronous evaluation
//	rulecheck run <repo> --prefix jobs/nightly       # sync or batch, by size
//	rulecheck batch submit <repo> --prefix jobs/x    # write manifests
//	rulecheck batch process --prefix jobs/x          # turn output into a report
//
// Exit codes: 0 success, 1 findings (with --fail-on-findings), 2 usage,
// 3 authentication, 4 runtime, 5 configuration.
package main
