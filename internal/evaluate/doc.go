// Package evaluate runs a rule catalogue against a repository.
//
// An [Engine] plans the (file, rule) units with the detector and mapper,
// then either evaluates them synchronously through a bounded worker pool or
// writes batch manifests for the external inference facility. Once that
// facility has written its output, [Engine.ProcessBatch] turns it into a
// report, skipping records an earlier run already handled.
package evaluate
