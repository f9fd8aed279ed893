package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/rulecheck/internal/cache"
	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/config"
	"github.com/dshills/rulecheck/internal/evaluate"
	"github.com/dshills/rulecheck/internal/files"
	"github.com/dshills/rulecheck/internal/gitctx"
	"github.com/dshills/rulecheck/internal/logging"
	"github.com/dshills/rulecheck/internal/metrics"
	"github.com/dshills/rulecheck/internal/objstore"
	"github.com/dshills/rulecheck/internal/output"
	"github.com/dshills/rulecheck/internal/providers"
	"github.com/dshills/rulecheck/internal/redact"
	"github.com/dshills/rulecheck/internal/review"
)

// Shared evaluation flags
var (
	flagCatalogue      string
	flagModel          string
	flagFormat         string
	flagOut            string
	flagStoreDir       string
	flagBucket         string
	flagPrefix         string
	flagConcurrency    int
	flagFailOnFindings bool
	flagNoRedact       bool
	flagNoCache        bool
	flagTrackedOnly    bool
	flagChangedSince   string
)

func addEvalFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagCatalogue, "catalogue", "", "Rule catalogue file (JSON or YAML)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model identifier, e.g. us.anthropic.claude-sonnet-4-20250514-v1:0")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown, sarif)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Concurrent model calls on the sync path")
	cmd.Flags().BoolVar(&flagFailOnFindings, "fail-on-findings", false, "Exit 1 when any finding is reported")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Do not read or write the response cache")
}

// addScopeFlags adds the git-based flags that narrow the scanned file set.
func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagTrackedOnly, "tracked-only", false, "Only consider files tracked by git")
	cmd.Flags().StringVar(&flagChangedSince, "changed-since", "", "Only consider files changed since this git revision")
}

func addStoreFlags(cmd *cobra.Command, prefixRequired bool) {
	cmd.Flags().StringVar(&flagStoreDir, "store-dir", "", "Directory backing the object store")
	cmd.Flags().StringVar(&flagBucket, "bucket", "", "Bucket for manifests, outputs and state")
	cmd.Flags().StringVar(&flagPrefix, "prefix", "", "Job prefix under the bucket")
	if prefixRequired {
		_ = cmd.MarkFlagRequired("prefix")
	}
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagCatalogue != "" {
		m["catalogue"] = flagCatalogue
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagStoreDir != "" {
		m["storeDir"] = flagStoreDir
	}
	if flagBucket != "" {
		m["bucket"] = flagBucket
	}
	if flagConcurrency > 0 {
		m["concurrency"] = strconv.Itoa(flagConcurrency)
	}
	if flagFailOnFindings {
		m["failOnFindings"] = "true"
	}
	if flagNoRedact {
		m["privacy.redactSecrets"] = "false"
	}
	if flagNoCache {
		m["cache.enabled"] = "false"
	}
	if flagLogLevel != "" {
		m["logging.level"] = flagLogLevel
	}
	return m
}

// app holds what every evaluating command needs.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	closeLog io.Closer
	metrics  *metrics.Metrics
}

func newApp() (*app, error) {
	cfg, err := config.Load(flagConfigPath, buildOverrides())
	if err != nil {
		return nil, configErr(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, configErr(fmt.Errorf("invalid configuration: %w", err))
	}
	log, closer := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if flagNoRedact {
		log.Warn("secret redaction is disabled")
	}
	return &app{cfg: cfg, log: log, closeLog: closer, metrics: metrics.New()}, nil
}

// Close writes the metrics file, if requested, and releases the log file.
func (a *app) Close() {
	if flagMetricsFile != "" {
		if err := a.metrics.WriteFile(flagMetricsFile); err != nil {
			a.log.WithError(err).Warn("writing metrics file")
		}
	}
	a.closeLog.Close()
}

func (a *app) loadCatalogue(required bool) (*catalog.Catalogue, error) {
	if a.cfg.Catalogue == "" {
		if required {
			return nil, configErr(errors.New("no rule catalogue: pass --catalogue or set catalogue in the config file"))
		}
		return nil, nil
	}
	cat, err := catalog.Load(a.cfg.Catalogue)
	if err != nil {
		return nil, configErr(err)
	}
	return cat, nil
}

func (a *app) scan(repo string) (*files.Manager, error) {
	opts := files.ScanOptions{MaxFileBytes: a.cfg.MaxFileBytes}
	switch {
	case flagChangedSince != "":
		changed, err := gitctx.ChangedFiles(repo, flagChangedSince)
		if err != nil {
			return nil, configErr(fmt.Errorf("--changed-since: %w", err))
		}
		opts.Only = changed
	case flagTrackedOnly:
		tracked, err := gitctx.TrackedFiles(repo)
		if err != nil {
			return nil, configErr(fmt.Errorf("--tracked-only: %w", err))
		}
		opts.Only = tracked
	}
	fm, err := files.Scan(repo, opts)
	if err != nil {
		return nil, runtimeErr(err)
	}
	a.log.WithFields(logrus.Fields{"repo": repo, "files": fm.Len()}).Debug("scanned repository")
	return fm, nil
}

// annotate stamps the git revision of the evaluated tree on the report.
// Trees outside git are left as they are.
func (a *app) annotate(report *review.Report) {
	if report.Repo == "" {
		return
	}
	meta, err := gitctx.Meta(report.Repo)
	if err != nil {
		a.log.WithError(err).Debug("no git metadata for report")
		return
	}
	report.Revision = meta.Head
	report.Branch = meta.Branch
}

func (a *app) store() objstore.Store {
	return objstore.NewFSStore(a.cfg.StoreDir)
}

func (a *app) cache() (*cache.Cache, error) {
	dir := a.cfg.Cache.Dir
	if dir == "" && a.cfg.Cache.Enabled {
		d, err := cache.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return cache.New(a.cfg.Cache.Enabled, dir, a.cfg.Cache.TTLSeconds)
}

// client builds the model client. Missing credentials do not fail here:
// batch runs never call the model, so the error is raised on first use.
func (a *app) client(reg *providers.Registry) providers.Completer {
	inv, err := providers.NewHTTPInvoker(a.cfg.Endpoint, a.cfg.Region)
	if err != nil {
		return unavailableClient{err: err}
	}
	retrier := providers.NewRetrier(a.cfg.Retry.Policies()...)
	retrier.OnRetry = func(p providers.RetryPolicy, attempt int, err error, wait time.Duration) {
		a.metrics.Retry(p.Name)
		a.log.WithFields(logrus.Fields{
			"policy":  p.Name,
			"attempt": attempt,
			"wait":    wait.Round(time.Millisecond).String(),
		}).WithError(err).Warn("retrying model call")
	}
	return providers.NewClient(reg, inv, retrier, a.metrics)
}

type unavailableClient struct{ err error }

func (u unavailableClient) Complete(ctx context.Context, modelID string, p providers.Prompt) (providers.Response, error) {
	return providers.Response{}, u.err
}

// engine builds an Engine. repo may be empty for commands that only process
// batch output.
func (a *app) engine(repo string) (*evaluate.Engine, error) {
	cat, err := a.loadCatalogue(repo != "")
	if err != nil {
		return nil, err
	}
	var fm *files.Manager
	if repo != "" {
		if fm, err = a.scan(repo); err != nil {
			return nil, err
		}
	}
	redactor, err := redact.New(a.cfg.Privacy.RedactSecrets, a.cfg.Privacy.RedactPaths)
	if err != nil {
		return nil, configErr(err)
	}
	c, err := a.cache()
	if err != nil {
		return nil, runtimeErr(fmt.Errorf("opening cache: %w", err))
	}

	reg := providers.DefaultRegistry()
	e, err := evaluate.NewEngine(evaluate.Options{
		Catalogue: cat,
		Files:     fm,
		Client:    a.client(reg),
		Registry:  reg,
		Store:     a.store(),
		Cache:     c,
		Prompter: review.Prompter{
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
			Redactor:    redactor,
		},
		Logger:        a.log,
		Metrics:       a.metrics,
		Model:         a.cfg.Model,
		Bucket:        a.cfg.Bucket,
		Version:       version,
		Concurrency:   a.cfg.Concurrency,
		SyncThreshold: a.cfg.SyncThreshold,
		MaxRecords:    a.cfg.MaxRecordsPerManifest,
		PersistEvery:  a.cfg.PersistEvery,
		NewProgress:   progressFactory(progressEnabled(a.log.IsLevelEnabled(logrus.DebugLevel))),
	})
	if err != nil {
		return nil, configErr(err)
	}
	return e, nil
}

// writeReport writes the report in the configured format and sets the
// findings exit code.
func (a *app) writeReport(cmd *cobra.Command, report *review.Report) error {
	a.annotate(report)
	if flagOut != "" {
		if err := output.WriteReport(report, a.cfg.Format, flagOut); err != nil {
			return runtimeErr(err)
		}
	} else {
		w, err := output.GetWriter(a.cfg.Format)
		if err != nil {
			return configErr(err)
		}
		if err := w.Write(cmd.OutOrStdout(), report); err != nil {
			return runtimeErr(err)
		}
	}
	if a.cfg.FailOnFindings && len(report.Findings) > 0 {
		exitCode = ExitFindings
	}
	return nil
}
