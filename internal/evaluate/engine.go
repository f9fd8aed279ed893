package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/rulecheck/internal/batch"
	"github.com/dshills/rulecheck/internal/cache"
	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/detect"
	"github.com/dshills/rulecheck/internal/files"
	"github.com/dshills/rulecheck/internal/logging"
	"github.com/dshills/rulecheck/internal/metrics"
	"github.com/dshills/rulecheck/internal/objstore"
	"github.com/dshills/rulecheck/internal/providers"
	"github.com/dshills/rulecheck/internal/review"
)

const (
	// DefaultConcurrency bounds in-flight model calls on the sync path.
	DefaultConcurrency = 4
	// DefaultSyncThreshold is the largest unit count evaluated synchronously.
	DefaultSyncThreshold = 200

	toolName = "rulecheck"
)

// Progress receives one Add per finished unit. *progressbar.ProgressBar
// satisfies it.
type Progress interface {
	Add(n int) error
}

// Options configures an Engine. Catalogue and Files are only needed for
// planning and submission; Client only for the sync path.
type Options struct {
	Catalogue *catalog.Catalogue
	Files     *files.Manager
	Client    providers.Completer
	// Registry defaults to providers.DefaultRegistry.
	Registry *providers.Registry
	Store    objstore.Store
	// Submitter defaults to a batch.SpoolSubmitter over Store.
	Submitter batch.Submitter
	Cache     *cache.Cache
	Prompter  review.Prompter
	Logger    logrus.FieldLogger
	Metrics   *metrics.Metrics

	Model         string
	Bucket        string
	Version       string
	Concurrency   int
	SyncThreshold int
	MaxRecords    int
	PersistEvery  int

	// NewProgress is called with the unit count before sync evaluation and
	// may return nil.
	NewProgress func(total int) Progress
	// NewID defaults to uuid.NewString.
	NewID func() string
}

// Engine orchestrates one evaluation run.
type Engine struct {
	opts    Options
	adapter providers.Adapter
	log     logrus.FieldLogger
}

// NewEngine validates the options. An unsupported model fails here, before
// any file is read or any model is called.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		opts.Registry = providers.DefaultRegistry()
	}
	adapter, err := opts.Registry.Adapter(opts.Model)
	if err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.SyncThreshold <= 0 {
		opts.SyncThreshold = DefaultSyncThreshold
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Submitter == nil && opts.Store != nil {
		opts.Submitter = &batch.SpoolSubmitter{Store: opts.Store, NewID: opts.NewID}
	}
	return &Engine{
		opts:    opts,
		adapter: adapter,
		log:     logging.OrDiscard(opts.Logger).WithField("model", opts.Model),
	}, nil
}

// Plan detects the applicable simple rules and maps them to files. Every
// rule in the catalogue must resolve its patterns, so configuration errors
// surface before any model call.
func (e *Engine) Plan(ctx context.Context) ([]detect.Unit, error) {
	if e.opts.Catalogue == nil || e.opts.Files == nil {
		return nil, errors.New("planning requires a catalogue and a file set")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.opts.Catalogue.Validate(); err != nil {
		return nil, err
	}

	d := detect.New(e.opts.Files, e.opts.Catalogue)
	units, err := detect.NewMapper(d).Units()
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"files":         e.opts.Files.Len(),
		"languages":     len(d.Languages()),
		"categories":    len(d.Categories()),
		"simple_rules":  len(d.SimpleRules()),
		"context_rules": len(d.ContextRules()),
		"units":         len(units),
	}).Info("planned evaluation")
	return units, nil
}

// RunResult is what Run did: a finished report on the sync path, or a
// submitted job on the batch path.
type RunResult struct {
	Mode       string
	Report     *review.Report
	Submission *batch.Submission
	JobID      string
	Prefix     string
}

// Run plans the evaluation and picks the sync path when the unit count is
// at most SyncThreshold, otherwise it submits a batch job under prefix. An
// empty prefix gets a generated one.
func (e *Engine) Run(ctx context.Context, prefix string) (*RunResult, error) {
	planStart := time.Now()
	units, err := e.Plan(ctx)
	if err != nil {
		return nil, err
	}
	planMs := time.Since(planStart).Milliseconds()

	if len(units) <= e.opts.SyncThreshold {
		report, err := e.EvaluateSync(ctx, units)
		if err != nil {
			return nil, err
		}
		report.Timing.PlanMs = planMs
		report.Timing.TotalMs += planMs
		return &RunResult{Mode: review.ModeSync, Report: report}, nil
	}

	if prefix == "" {
		prefix = objstore.Join("runs", e.opts.NewID())
	}
	e.log.WithFields(logrus.Fields{"units": len(units), "threshold": e.opts.SyncThreshold}).Info("unit count above sync threshold, submitting batch job")
	sub, jobID, err := e.SubmitBatch(ctx, units, prefix)
	if err != nil {
		return nil, err
	}
	return &RunResult{Mode: review.ModeBatch, Submission: sub, JobID: jobID, Prefix: prefix}, nil
}

// newReport fills the parts of a report that come from the plan.
func (e *Engine) newReport(mode string, units []detect.Unit) *review.Report {
	r := &review.Report{
		Tool:    toolName,
		Version: e.opts.Version,
		RunID:   e.opts.NewID(),
		Model:   e.opts.Model,
		Mode:    mode,
	}
	if e.opts.Files != nil {
		r.Repo = e.opts.Files.Root()
	}

	fileSet := make(map[string]bool)
	seen := make(map[string]bool)
	for _, u := range units {
		fileSet[u.File] = true
		if !seen[u.Rule.ID] {
			seen[u.Rule.ID] = true
			r.Rules = append(r.Rules, ruleInfo(u.Rule))
		}
	}
	sort.Slice(r.Rules, func(i, j int) bool { return r.Rules[i].ID < r.Rules[j].ID })
	r.Summary.Rules = len(r.Rules)
	r.Summary.Files = len(fileSet)
	r.Summary.Units = len(units)
	return r
}

// finish sorts the results and computes the summary counts.
func finish(r *review.Report, findings []review.Finding, errs []review.EvaluationError) {
	if findings == nil {
		findings = []review.Finding{}
	}
	if errs == nil {
		errs = []review.EvaluationError{}
	}
	review.SortFindings(findings)
	review.SortErrors(errs)
	s := review.ComputeSummary(findings, errs)
	r.Summary.Findings = s.Findings
	r.Summary.Errors = s.Errors
	r.Summary.NonCompliant = s.NonCompliant
	r.Findings = findings
	r.Errors = errs
}

func ruleInfo(r *catalog.Rule) review.RuleInfo {
	ri := review.RuleInfo{ID: r.ID, Description: r.Description}
	if r.Category != nil {
		ri.Category = r.Category.Name
	}
	return ri
}

func (e *Engine) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := e.opts.Store.Put(ctx, e.opts.Bucket, key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
