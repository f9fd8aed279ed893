package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/dshills/rulecheck/internal/logging"
	"github.com/dshills/rulecheck/internal/metrics"
	"github.com/dshills/rulecheck/internal/review"
)

// Outcome is what one record produced. It is also the payload kept in the
// RecordStore, so a resumed run can report earlier results.
type Outcome struct {
	Findings []review.Finding        `json:"findings,omitempty"`
	Error    *review.EvaluationError `json:"error,omitempty"`
}

// ExtractResult is the result of Extract. When Skipped is set the Outcome
// comes from the store rather than from the record.
type ExtractResult struct {
	Outcome
	Skipped bool
}

// Result aggregates an ExtractAll run. Findings and Errors hold only newly
// processed records; Prior* hold what earlier runs stored for skipped ones.
type Result struct {
	Findings      []review.Finding
	Errors        []review.EvaluationError
	Skipped       int
	PriorFindings []review.Finding
	PriorErrors   []review.EvaluationError
}

// Extractor maps output records to findings and evaluation errors.
type Extractor struct {
	Store RecordStore
	Index RecordIndex
	// PersistEvery checkpoints the store after that many new records; zero
	// leaves persisting to the caller.
	PersistEvery int
	Logger       logrus.FieldLogger
	Metrics      *metrics.Metrics
}

// Extract processes one record. Already-stored records are skipped; new
// ones are added to the store only after their outcome is known.
func (e *Extractor) Extract(rec OutputRecord) (ExtractResult, error) {
	log := logging.OrDiscard(e.Logger).WithField("record_id", rec.RecordID)

	if prior, ok := e.Store.GetRecord(rec.RecordID); ok {
		var out Outcome
		if err := json.Unmarshal(prior, &out); err != nil {
			log.WithError(err).Warn("stored record is not an outcome")
		}
		e.Metrics.Skipped()
		return ExtractResult{Outcome: out, Skipped: true}, nil
	}

	ref, known := e.Index[rec.RecordID]
	if !known {
		ref = RecordRef{File: UnknownRecordID}
	}
	var rules []string
	if ref.Rule != "" {
		rules = []string{ref.Rule}
	}

	var out Outcome
	switch {
	case !known:
		msg := fmt.Sprintf("record %s is not in the record index", rec.RecordID)
		if rec.Error != nil {
			msg += ": " + rec.Error.Message
		}
		out.Error = &review.EvaluationError{File: ref.File, Error: msg, Rules: rules}
	case rec.Error != nil:
		out.Error = &review.EvaluationError{File: ref.File, Error: rec.Error.Message, Rules: rules}
	case rec.Response != nil:
		j, err := review.ParseJudgment(rec.Response.Content)
		if err != nil {
			out.Error = &review.EvaluationError{File: ref.File, Error: "unparseable judgment: " + err.Error(), Rules: rules}
		} else {
			out.Findings = j.For(ref.Rule, ref.File)
		}
	default:
		out.Error = &review.EvaluationError{File: ref.File, Error: noOutputMessage, Rules: rules}
	}

	if out.Error != nil {
		log.WithFields(logrus.Fields{"file": ref.File, "rule": ref.Rule}).Warnf("evaluation error: %s", out.Error.Error)
		e.Metrics.EvalError()
	}
	e.Metrics.Findings(len(out.Findings))

	// An id that could not be recovered cannot be deduplicated.
	if rec.RecordID != UnknownRecordID {
		payload, err := json.Marshal(out)
		if err != nil {
			return ExtractResult{}, fmt.Errorf("marshaling outcome of %s: %w", rec.RecordID, err)
		}
		e.Store.AddRecord(rec.RecordID, payload)
	}
	return ExtractResult{Outcome: out}, nil
}

// ExtractAll consumes a record sequence. A sequence error ends the run and
// is returned with the partial result.
func (e *Extractor) ExtractAll(ctx context.Context, seq iter.Seq2[OutputRecord, error]) (Result, error) {
	var res Result
	fresh := 0
	for rec, err := range seq {
		if err != nil {
			return res, err
		}
		r, err := e.Extract(rec)
		if err != nil {
			return res, err
		}
		if r.Skipped {
			res.Skipped++
			res.PriorFindings = append(res.PriorFindings, r.Findings...)
			if r.Error != nil {
				res.PriorErrors = append(res.PriorErrors, *r.Error)
			}
			continue
		}
		res.Findings = append(res.Findings, r.Findings...)
		if r.Error != nil {
			res.Errors = append(res.Errors, *r.Error)
		}
		fresh++
		if e.PersistEvery > 0 && fresh%e.PersistEvery == 0 {
			if err := e.Store.PersistState(ctx); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
