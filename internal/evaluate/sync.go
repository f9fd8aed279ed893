package evaluate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/rulecheck/internal/cache"
	"github.com/dshills/rulecheck/internal/detect"
	"github.com/dshills/rulecheck/internal/providers"
	"github.com/dshills/rulecheck/internal/review"
)

const repairTemplate = "Your previous response was not valid JSON. The error was: %s\n\n" +
	"Respond with ONLY the JSON object described in the instructions.\n\n" +
	"Your previous response was:\n%s"

// unitResult is the outcome of one (file, rule) unit.
type unitResult struct {
	findings []review.Finding
	evalErr  *review.EvaluationError
}

// EvaluateSync calls the model once per unit through a bounded worker pool.
// Each file is read once; unreadable files and unparseable judgments become
// evaluation errors. A model error that survives the retry policies cancels
// the remaining units and fails the run.
func (e *Engine) EvaluateSync(ctx context.Context, units []detect.Unit) (*review.Report, error) {
	if e.opts.Client == nil {
		return nil, fmt.Errorf("sync evaluation requires a model client")
	}
	start := time.Now()
	report := e.newReport(review.ModeSync, units)

	var errs []review.EvaluationError
	contents := make(map[string]string)
	unreadable := make(map[string]int)
	var work []detect.Unit
	for _, u := range units {
		if i, ok := unreadable[u.File]; ok {
			errs[i].Rules = append(errs[i].Rules, u.Rule.ID)
			continue
		}
		if _, ok := contents[u.File]; !ok {
			text, err := e.opts.Files.Read(u.File)
			if err != nil {
				e.log.WithField("file", u.File).WithError(err).Warn("skipping unreadable file")
				e.opts.Metrics.EvalError()
				unreadable[u.File] = len(errs)
				errs = append(errs, review.EvaluationError{File: u.File, Error: err.Error(), Rules: []string{u.Rule.ID}})
				continue
			}
			contents[u.File] = text
		}
		work = append(work, u)
	}

	var progress Progress
	if e.opts.NewProgress != nil {
		progress = e.opts.NewProgress(len(work))
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	results := make([]unitResult, len(work))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.opts.Concurrency)
	var llmMs atomic.Int64

	for i, u := range work {
		wg.Add(1)
		go func(i int, u detect.Unit) {
			defer wg.Done()
			sem <- struct{}{}        // acquire
			defer func() { <-sem }() // release
			if ctx.Err() != nil {
				return
			}

			res, err := e.evaluateUnit(ctx, u, contents[u.File], &llmMs)
			if err != nil {
				cancel(fmt.Errorf("evaluating %s against %s: %w", u.File, u.Rule.ID, err))
				return
			}
			results[i] = res
			if progress != nil {
				_ = progress.Add(1)
			}
		}(i, u)
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}

	var findings []review.Finding
	for _, r := range results {
		findings = append(findings, r.findings...)
		if r.evalErr != nil {
			errs = append(errs, *r.evalErr)
		}
	}
	finish(report, findings, errs)
	report.Timing.LLMMs = llmMs.Load()
	report.Timing.TotalMs = time.Since(start).Milliseconds()

	e.log.WithFields(logrus.Fields{
		"units":    len(units),
		"findings": report.Summary.Findings,
		"errors":   report.Summary.Errors,
	}).Info("sync evaluation finished")
	return report, nil
}

// evaluateUnit judges one file against one rule. Only model call failures
// are returned as errors.
func (e *Engine) evaluateUnit(ctx context.Context, u detect.Unit, contents string, llmMs *atomic.Int64) (unitResult, error) {
	log := e.log.WithFields(logrus.Fields{"file": u.File, "rule": u.Rule.ID})
	prompt := e.opts.Prompter.Prompt(u.Rule, u.File, contents)
	key := cache.BuildCacheKey(e.opts.Model, prompt)

	resp, hit := e.opts.Cache.Get(key)
	if hit {
		log.Debug("cache hit")
	} else {
		var err error
		if resp, err = e.complete(ctx, prompt, llmMs); err != nil {
			return unitResult{}, err
		}
	}

	j, err := review.ParseJudgment(resp.Content)
	if err != nil && !hit {
		log.WithError(err).Debug("judgment not parseable, asking for a repair")
		repair := prompt
		repair.User = fmt.Sprintf(repairTemplate, err.Error(), resp.Content)
		if resp, err = e.complete(ctx, repair, llmMs); err != nil {
			return unitResult{}, err
		}
		j, err = review.ParseJudgment(resp.Content)
	}
	if err != nil {
		log.WithError(err).Warn("unparseable judgment")
		e.opts.Metrics.EvalError()
		return unitResult{evalErr: &review.EvaluationError{
			File:  u.File,
			Error: "unparseable judgment: " + err.Error(),
			Rules: []string{u.Rule.ID},
		}}, nil
	}

	if !hit {
		if err := e.opts.Cache.Put(key, e.opts.Model, resp); err != nil {
			log.WithError(err).Warn("caching response")
		}
	}
	findings := j.For(u.Rule.ID, u.File)
	e.opts.Metrics.Findings(len(findings))
	return unitResult{findings: findings}, nil
}

func (e *Engine) complete(ctx context.Context, p providers.Prompt, llmMs *atomic.Int64) (providers.Response, error) {
	start := time.Now()
	resp, err := e.opts.Client.Complete(ctx, e.opts.Model, p)
	llmMs.Add(time.Since(start).Milliseconds())
	return resp, err
}
