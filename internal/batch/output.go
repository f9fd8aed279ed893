package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/dshills/rulecheck/internal/logging"
	"github.com/dshills/rulecheck/internal/metrics"
	"github.com/dshills/rulecheck/internal/objstore"
	"github.com/dshills/rulecheck/internal/providers"
)

// UnknownRecordID keys error records whose id could not be recovered.
const UnknownRecordID = "unknown"

const (
	noOutputMessage = "No model output or error found"
	noOutputCode    = 500
	// DefaultMaxLineBytes bounds one output line; model inputs echo whole
	// files. Longer lines become error records.
	DefaultMaxLineBytes = 16 << 20
)

// RecordError is the error half of an output record.
type RecordError struct {
	Message string `json:"errorMessage"`
	Code    int    `json:"errorCode"`
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// OutputRecord is one processed batch output line. Exactly one of Response
// and Error is set.
type OutputRecord struct {
	RecordID   string
	ModelInput json.RawMessage
	Response   *providers.Response
	Error      *RecordError
}

type rawOutputLine struct {
	RecordID    string          `json:"recordId"`
	ModelInput  json.RawMessage `json:"modelInput"`
	ModelOutput json.RawMessage `json:"modelOutput"`
	Error       json.RawMessage `json:"error"`
}

type rawRecordError struct {
	Message string    `json:"errorMessage"`
	Code    errorCode `json:"errorCode"`
}

// errorCode accepts numeric and string codes.
type errorCode int

func (c *errorCode) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = errorCode(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("errorCode: %w", err)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		n = noOutputCode
	}
	*c = errorCode(n)
	return nil
}

var recordIDPattern = regexp.MustCompile(`"recordId"\s*:\s*"([^"\\]+)"`)

// OutputProcessor normalizes batch output through one model's adapter.
type OutputProcessor struct {
	store   objstore.Store
	adapter providers.Adapter
	modelID string

	// MaxLineBytes defaults to DefaultMaxLineBytes.
	MaxLineBytes int

	// Logger and Metrics are optional.
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// NewOutputProcessor resolves the adapter for modelID. An unsupported model
// fails here, before any output is read.
func NewOutputProcessor(store objstore.Store, reg *providers.Registry, modelID string) (*OutputProcessor, error) {
	adapter, err := reg.Adapter(modelID)
	if err != nil {
		return nil, err
	}
	return &OutputProcessor{store: store, adapter: adapter, modelID: modelID}, nil
}

// ProcessRecord converts one output line. It never fails: problems with the
// line become the record's Error.
func (p *OutputProcessor) ProcessRecord(line []byte) OutputRecord {
	var raw rawOutputLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return errorRecord(recoverRecordID(line), "parsing output record: "+err.Error(), noOutputCode)
	}
	id := raw.RecordID
	if id == "" {
		id = UnknownRecordID
	}
	rec := OutputRecord{RecordID: id, ModelInput: raw.ModelInput}

	switch {
	case present(raw.Error):
		var re rawRecordError
		if err := json.Unmarshal(raw.Error, &re); err != nil {
			// A bare string error is still an error.
			var msg string
			if json.Unmarshal(raw.Error, &msg) != nil {
				msg = string(raw.Error)
			}
			rec.Error = &RecordError{Message: msg, Code: noOutputCode}
			return rec
		}
		rec.Error = &RecordError{Message: re.Message, Code: int(re.Code)}
	case present(raw.ModelOutput):
		resp, err := p.adapter.ParseResponse(raw.ModelOutput)
		if err != nil {
			rec.Error = &RecordError{Message: err.Error(), Code: noOutputCode}
			return rec
		}
		rec.Response = &resp
	default:
		rec.Error = &RecordError{Message: noOutputMessage, Code: noOutputCode}
	}
	return rec
}

// ProcessOutput streams the records of one output object in file order,
// skipping blank lines. A line longer than MaxLineBytes is discarded and
// reported as an error record. The error half of the sequence is only used
// for storage and read failures, after which the sequence ends.
func (p *OutputProcessor) ProcessOutput(ctx context.Context, bucket, key string) iter.Seq2[OutputRecord, error] {
	return func(yield func(OutputRecord, error) bool) {
		rc, err := p.store.Open(ctx, bucket, key)
		if err != nil {
			yield(OutputRecord{}, fmt.Errorf("opening batch output: %w", err))
			return
		}
		defer rc.Close()

		limit := p.MaxLineBytes
		if limit <= 0 {
			limit = DefaultMaxLineBytes
		}
		log := logging.OrDiscard(p.Logger).WithField("output", key)
		br := bufio.NewReaderSize(rc, 64*1024)
		n := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(OutputRecord{}, err)
				return
			}
			raw, over, rerr := readLine(br, limit)
			if rerr != nil && !errors.Is(rerr, io.EOF) {
				yield(OutputRecord{}, fmt.Errorf("reading batch output %s: %w", key, rerr))
				return
			}
			if line := bytes.TrimSpace(raw); len(line) > 0 {
				n++
				var rec OutputRecord
				if over {
					rec = errorRecord(recoverRecordID(line), fmt.Sprintf("output record exceeds %d bytes", limit), noOutputCode)
				} else {
					rec = p.ProcessRecord(line)
				}
				p.Metrics.OutputRecord(rec.Error != nil)
				if rec.Error != nil {
					log.WithFields(logrus.Fields{"record_id": rec.RecordID, "line": n}).Debugf("record error: %s", rec.Error.Message)
				}
				if !yield(rec, nil) {
					return
				}
			}
			if rerr != nil {
				break
			}
		}
		log.WithField("records", n).Debug("batch output read")
	}
}

// readLine reads through the next newline. At most limit bytes are kept;
// over reports that the rest of the line was discarded.
func readLine(r *bufio.Reader, limit int) (line []byte, over bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !over {
			if len(line)+len(chunk) > limit {
				line = append(line, chunk[:limit-len(line)]...)
				over = true
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, over, err
	}
}

func errorRecord(id, msg string, code int) OutputRecord {
	return OutputRecord{RecordID: id, Error: &RecordError{Message: msg, Code: code}}
}

func recoverRecordID(line []byte) string {
	if m := recordIDPattern.FindSubmatch(line); m != nil {
		return string(m[1])
	}
	return UnknownRecordID
}

func present(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}
