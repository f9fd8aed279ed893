package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/rulecheck/internal/batch"
	"github.com/dshills/rulecheck/internal/detect"
	"github.com/dshills/rulecheck/internal/objstore"
	"github.com/dshills/rulecheck/internal/review"
)

// SubmissionKey is where SubmitBatch records the submission, including the
// files that could not be read.
func SubmissionKey(prefix string) string { return objstore.Join(prefix, "submission.json") }

// FindingsKey is where ProcessBatch writes the findings array.
func FindingsKey(prefix string) string { return objstore.Join(prefix, "findings.json") }

// ErrorsKey is where ProcessBatch writes the evaluation errors array.
func ErrorsKey(prefix string) string { return objstore.Join(prefix, "errors.json") }

// SubmitBatch writes the manifests and record index for units under prefix
// and hands them to the Submitter. When no unit produced a record, nothing is
// submitted: the submission is returned with its errors and an empty job id.
func (e *Engine) SubmitBatch(ctx context.Context, units []detect.Unit, prefix string) (*batch.Submission, string, error) {
	if e.opts.Store == nil || e.opts.Files == nil {
		return nil, "", errors.New("batch submission requires an object store and a file set")
	}
	builder := batch.NewManifestBuilder(e.opts.Store, e.adapter, batch.BuilderOptions{
		Bucket:     e.opts.Bucket,
		MaxRecords: e.opts.MaxRecords,
		Prompt:     e.opts.Prompter.Prompt,
		NewID:      e.opts.NewID,
		Logger:     e.log,
		Metrics:    e.opts.Metrics,
	})
	sub, err := builder.Build(ctx, e.opts.Files, units, prefix)
	if err != nil {
		return nil, "", err
	}
	if err := e.putJSON(ctx, SubmissionKey(prefix), sub); err != nil {
		return sub, "", err
	}
	if sub.RecordCount == 0 {
		e.log.WithFields(logrus.Fields{"prefix": prefix, "skipped": len(sub.Errors)}).Warn("no records to submit")
		return sub, "", nil
	}

	jobID, err := e.opts.Submitter.Submit(ctx, sub, e.opts.Model)
	if err != nil {
		return sub, "", fmt.Errorf("submitting batch job: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"job_id":    jobID,
		"prefix":    prefix,
		"manifests": len(sub.ManifestKeys),
		"records":   sub.RecordCount,
		"skipped":   len(sub.Errors),
	}).Info("batch job submitted")
	return sub, jobID, nil
}

// ProcessBatch turns the batch output under prefix into a report. Records
// handled by an earlier run are skipped but their stored results are still
// reported. Manifests without output yet are left for a later run. The
// state is persisted even when processing fails part way.
func (e *Engine) ProcessBatch(ctx context.Context, prefix string) (report *review.Report, err error) {
	if e.opts.Store == nil {
		return nil, errors.New("batch processing requires an object store")
	}
	start := time.Now()
	store, bucket := e.opts.Store, e.opts.Bucket

	idx, err := batch.LoadIndex(ctx, store, bucket, prefix)
	if err != nil {
		return nil, err
	}
	rs := batch.NewObjectRecordStore(store, bucket, prefix)
	if err := batch.LoadOrInit(ctx, rs); err != nil {
		return nil, err
	}
	defer func() {
		if perr := rs.PersistState(ctx); perr != nil && err == nil {
			report, err = nil, perr
		}
	}()

	proc, err := batch.NewOutputProcessor(store, e.opts.Registry, e.opts.Model)
	if err != nil {
		return nil, err
	}
	proc.Logger, proc.Metrics = e.log, e.opts.Metrics

	manifests, err := store.List(ctx, bucket, batch.ManifestDir(prefix))
	if err != nil {
		return nil, err
	}
	ex := &batch.Extractor{
		Store:        rs,
		Index:        idx,
		PersistEvery: e.opts.PersistEvery,
		Logger:       e.log,
		Metrics:      e.opts.Metrics,
	}

	var findings []review.Finding
	var errs []review.EvaluationError
	fresh, skipped, pending := 0, 0, 0
	for _, mk := range manifests {
		outKey := batch.OutputKey(prefix, mk)
		res, err := ex.ExtractAll(ctx, proc.ProcessOutput(ctx, bucket, outKey))
		if errors.Is(err, objstore.ErrNotFound) {
			e.log.WithField("manifest", mk).Warn("no output yet, leaving manifest for a later run")
			pending++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", outKey, err)
		}
		findings = append(findings, res.Findings...)
		findings = append(findings, res.PriorFindings...)
		errs = append(errs, res.Errors...)
		errs = append(errs, res.PriorErrors...)
		fresh += len(res.Findings) + len(res.Errors)
		skipped += res.Skipped
	}

	sub, err := e.loadSubmission(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		errs = append(errs, sub.Errors...)
	}

	report = e.batchReport(idx, sub)
	finish(report, findings, errs)
	if err := e.putJSON(ctx, FindingsKey(prefix), report.Findings); err != nil {
		return nil, err
	}
	if err := e.putJSON(ctx, ErrorsKey(prefix), report.Errors); err != nil {
		return nil, err
	}
	report.Timing.TotalMs = time.Since(start).Milliseconds()

	e.log.WithFields(logrus.Fields{
		"prefix":    prefix,
		"manifests": len(manifests),
		"pending":   pending,
		"skipped":   skipped,
		"new":       fresh,
		"findings":  report.Summary.Findings,
		"errors":    report.Summary.Errors,
	}).Info("batch output processed")
	return report, nil
}

func (e *Engine) loadSubmission(ctx context.Context, prefix string) (*batch.Submission, error) {
	data, err := e.opts.Store.Get(ctx, e.opts.Bucket, SubmissionKey(prefix))
	if errors.Is(err, objstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sub batch.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("parsing submission: %w", err)
	}
	return &sub, nil
}

// batchReport describes the units of a batch job from its record index and
// the files its submission could not read.
func (e *Engine) batchReport(idx batch.RecordIndex, sub *batch.Submission) *review.Report {
	r := &review.Report{
		Tool:    toolName,
		Version: e.opts.Version,
		RunID:   e.opts.NewID(),
		Model:   e.opts.Model,
		Mode:    review.ModeBatch,
	}
	if e.opts.Files != nil {
		r.Repo = e.opts.Files.Root()
	}

	fileSet := make(map[string]bool)
	ruleSet := make(map[string]bool)
	units := len(idx)
	for _, ref := range idx {
		fileSet[ref.File] = true
		ruleSet[ref.Rule] = true
	}
	if sub != nil {
		for _, ev := range sub.Errors {
			fileSet[ev.File] = true
			units += len(ev.Rules)
			for _, id := range ev.Rules {
				ruleSet[id] = true
			}
		}
	}

	ids := make([]string, 0, len(ruleSet))
	for id := range ruleSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		info := review.RuleInfo{ID: id}
		if e.opts.Catalogue != nil {
			if rule, ok := e.opts.Catalogue.Rule(id); ok {
				info = ruleInfo(rule)
			}
		}
		r.Rules = append(r.Rules, info)
	}
	r.Summary.Rules = len(ids)
	r.Summary.Files = len(fileSet)
	r.Summary.Units = units
	return r
}
