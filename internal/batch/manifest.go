package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/detect"
	"github.com/dshills/rulecheck/internal/logging"
	"github.com/dshills/rulecheck/internal/metrics"
	"github.com/dshills/rulecheck/internal/objstore"
	"github.com/dshills/rulecheck/internal/providers"
	"github.com/dshills/rulecheck/internal/review"
)

// DefaultMaxRecords is the per-manifest record cap. It matches the
// per-file record limit of Bedrock batch inference.
const DefaultMaxRecords = 50000

// ErrPrefixInUse is returned by Build when the prefix already holds
// manifests from an earlier submission.
var ErrPrefixInUse = errors.New("prefix already holds manifests")

// InvocationRecord is one manifest line.
type InvocationRecord struct {
	RecordID   string          `json:"recordId"`
	ModelInput json.RawMessage `json:"modelInput"`
}

// ContentReader returns the contents of a repository file.
type ContentReader interface {
	Read(path string) (string, error)
}

// PromptFunc builds the canonical prompt for one unit.
type PromptFunc func(rule *catalog.Rule, file, contents string) providers.Prompt

// BuilderOptions configures a ManifestBuilder.
type BuilderOptions struct {
	Bucket     string
	MaxRecords int
	// Prompt defaults to review.BuildRulePrompt.
	Prompt PromptFunc
	// NewID defaults to uuid.NewString.
	NewID   func() string
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Submission describes manifests written for one job.
type Submission struct {
	Bucket       string                   `json:"bucket"`
	Prefix       string                   `json:"prefix"`
	ManifestKeys []string                 `json:"manifestKeys"`
	RecordCount  int                      `json:"recordCount"`
	Errors       []review.EvaluationError `json:"errors,omitempty"`
	CreatedAt    time.Time                `json:"createdAt"`
}

// ManifestBuilder writes invocation records for evaluation units.
type ManifestBuilder struct {
	store   objstore.Store
	adapter providers.Adapter
	opts    BuilderOptions
	log     logrus.FieldLogger
}

// NewManifestBuilder creates a builder that formats model inputs with adapter.
func NewManifestBuilder(store objstore.Store, adapter providers.Adapter, opts BuilderOptions) *ManifestBuilder {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	if opts.Prompt == nil {
		opts.Prompt = review.BuildRulePrompt
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &ManifestBuilder{store: store, adapter: adapter, opts: opts, log: logging.OrDiscard(opts.Logger)}
}

// ManifestDir is the key prefix under which the manifests of prefix live.
func ManifestDir(prefix string) string {
	return objstore.Join(prefix, "manifests") + "/"
}

// ManifestKey is the object key of the i-th manifest under prefix.
func ManifestKey(prefix string, i int) string {
	return objstore.Join(prefix, "manifests", fmt.Sprintf("manifest-%04d.jsonl", i))
}

// OutputKey is where the batch facility writes the output of a manifest.
func OutputKey(prefix, manifestKey string) string {
	return objstore.Join(prefix, "output", path.Base(manifestKey)+".out")
}

// Build writes one record per readable unit, split into manifests of at
// most MaxRecords records, followed by the record index. Units whose file
// cannot be read are reported in Submission.Errors, one per file. A prefix
// that already holds manifests is refused with ErrPrefixInUse.
func (b *ManifestBuilder) Build(ctx context.Context, src ContentReader, units []detect.Unit, prefix string) (*Submission, error) {
	existing, err := b.store.List(ctx, b.opts.Bucket, ManifestDir(prefix))
	if err != nil {
		return nil, fmt.Errorf("checking prefix %s: %w", prefix, err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: %s (%d manifests)", ErrPrefixInUse, prefix, len(existing))
	}

	sub := &Submission{Bucket: b.opts.Bucket, Prefix: prefix, ManifestKeys: []string{}, CreatedAt: time.Now().UTC()}
	index := make(RecordIndex, len(units))

	var (
		buf      bytes.Buffer
		inBuf    int
		file     string
		contents string
		skipFile bool
	)

	flush := func() error {
		if inBuf == 0 {
			return nil
		}
		key := ManifestKey(prefix, len(sub.ManifestKeys))
		if err := b.store.Put(ctx, b.opts.Bucket, key, buf.Bytes()); err != nil {
			return fmt.Errorf("writing manifest %s: %w", key, err)
		}
		b.log.WithFields(logrus.Fields{"manifest": key, "records": inBuf}).Info("manifest written")
		b.opts.Metrics.ManifestWritten(inBuf)
		sub.ManifestKeys = append(sub.ManifestKeys, key)
		buf.Reset()
		inBuf = 0
		return nil
	}

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if u.File != file {
			file = u.File
			c, err := src.Read(file)
			skipFile = err != nil
			if skipFile {
				b.log.WithFields(logrus.Fields{"file": file}).WithError(err).Warn("skipping unreadable file")
				sub.Errors = append(sub.Errors, review.EvaluationError{File: file, Error: err.Error()})
			}
			contents = c
		}
		if skipFile {
			last := &sub.Errors[len(sub.Errors)-1]
			last.Rules = append(last.Rules, u.Rule.ID)
			continue
		}

		input, err := b.adapter.BuildRequest(b.opts.Prompt(u.Rule, u.File, contents))
		if err != nil {
			return nil, fmt.Errorf("building model input for %s/%s: %w", u.File, u.Rule.ID, err)
		}
		id := b.opts.NewID()
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("duplicate record id %q", id)
		}
		line, err := json.Marshal(InvocationRecord{RecordID: id, ModelInput: input})
		if err != nil {
			return nil, fmt.Errorf("marshaling record %s: %w", id, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		inBuf++
		index[id] = RecordRef{File: u.File, Rule: u.Rule.ID}
		sub.RecordCount++

		if inBuf >= b.opts.MaxRecords {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := SaveIndex(ctx, b.store, b.opts.Bucket, prefix, index); err != nil {
		return nil, err
	}
	return sub, nil
}

// ReadManifest decodes the records of one manifest.
func ReadManifest(ctx context.Context, store objstore.Store, bucket, key string) ([]InvocationRecord, error) {
	data, err := store.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	var out []InvocationRecord
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec InvocationRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", key, i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
