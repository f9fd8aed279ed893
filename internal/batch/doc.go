// Package batch implements the asynchronous evaluation path.
//
// Submission: a [ManifestBuilder] turns (file, rule) units into invocation
// records with fresh ids, writes them as newline-delimited JSON manifests
// under a job prefix, and records which file and rule each id stands for.
// A [Submitter] hands the manifests to the batch inference facility.
//
// Processing: an [OutputProcessor] streams a finished manifest's output,
// normalizing each line through the model's provider adapter and turning
// malformed lines into per-record errors. An [Extractor] maps records to
// findings and evaluation errors, consulting a [RecordStore] so that
// processing the same output again produces nothing new.
//
// Object layout under a job prefix:
//
//	{prefix}/manifests/manifest-0000.jsonl   invocation records
//	{prefix}/records.json                    record id -> {file, rule}
//	{prefix}/jobs/{jobID}.json               spooled job description
//	{prefix}/output/manifest-0000.jsonl.out  batch output
//	{prefix}/state.json                      processed record ids
package batch
