package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/rulecheck/internal/objstore"
)

// Submitter hands a submission to the batch inference facility and returns
// the job id. Polling the job is the caller's concern.
type Submitter interface {
	Submit(ctx context.Context, sub *Submission, modelID string) (string, error)
}

// Job is the spooled description of a submitted batch job.
type Job struct {
	JobID        string    `json:"jobId"`
	ModelID      string    `json:"modelId"`
	Bucket       string    `json:"bucket"`
	Prefix       string    `json:"prefix"`
	ManifestKeys []string  `json:"manifestKeys"`
	OutputPrefix string    `json:"outputPrefix"`
	RecordCount  int       `json:"recordCount"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// JobKey is the object key of a spooled job.
func JobKey(prefix, jobID string) string {
	return objstore.Join(prefix, "jobs", jobID+".json")
}

// SpoolSubmitter writes each job description to the store, where the batch
// facility's driver picks it up.
type SpoolSubmitter struct {
	Store objstore.Store
	NewID func() string
}

// Submit writes {prefix}/jobs/{jobID}.json.
func (s *SpoolSubmitter) Submit(ctx context.Context, sub *Submission, modelID string) (string, error) {
	if sub == nil || len(sub.ManifestKeys) == 0 {
		return "", errors.New("nothing to submit: submission has no manifests")
	}
	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	job := Job{
		JobID:        newID(),
		ModelID:      modelID,
		Bucket:       sub.Bucket,
		Prefix:       sub.Prefix,
		ManifestKeys: sub.ManifestKeys,
		OutputPrefix: objstore.Join(sub.Prefix, "output"),
		RecordCount:  sub.RecordCount,
		SubmittedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling job: %w", err)
	}
	if err := s.Store.Put(ctx, sub.Bucket, JobKey(sub.Prefix, job.JobID), data); err != nil {
		return "", fmt.Errorf("spooling job: %w", err)
	}
	return job.JobID, nil
}
