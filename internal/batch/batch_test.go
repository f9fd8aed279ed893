package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/rulecheck/internal/catalog"
	"github.com/dshills/rulecheck/internal/detect"
	"github.com/dshills/rulecheck/internal/files"
	"github.com/dshills/rulecheck/internal/objstore"
	"github.com/dshills/rulecheck/internal/providers"
)

const (
	testBucket = "rulecheck"
	testModel  = "us.anthropic.claude-3-haiku-20240307-v1:0"
)

type mapReader map[string]string

func (m mapReader) Read(path string) (string, error) {
	c, ok := m[path]
	if !ok {
		return "", fmt.Errorf("reading %s: %w", path, files.ErrBinary)
	}
	return c, nil
}

func makeUnits(nFiles int, rules ...string) ([]detect.Unit, mapReader) {
	reader := mapReader{}
	var units []detect.Unit
	for i := range nFiles {
		f := fmt.Sprintf("src/f%03d.py", i)
		reader[f] = "print('hi')\n"
		for _, r := range rules {
			units = append(units, detect.Unit{File: f, Rule: &catalog.Rule{ID: r, Description: "rule " + r}})
		}
	}
	return units, reader
}

func anthropicOutput(text string) string {
	out := map[string]any{
		"role":        "assistant",
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
		"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func TestManifestBuilder_Chunking(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	units, reader := makeUnits(25, "R1", "R2", "R3", "R4") // 100 units

	b := NewManifestBuilder(store, providers.AnthropicAdapter{}, BuilderOptions{Bucket: testBucket, MaxRecords: 30})
	sub, err := b.Build(ctx, reader, units, "runs/job1")
	require.NoError(t, err)

	assert.Equal(t, 100, sub.RecordCount)
	require.Len(t, sub.ManifestKeys, 4)
	assert.Equal(t, "runs/job1/manifests/manifest-0000.jsonl", sub.ManifestKeys[0])

	ids := map[string]bool{}
	total := 0
	for i, key := range sub.ManifestKeys {
		recs, err := ReadManifest(ctx, store, testBucket, key)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(recs), 30)
		if i < 3 {
			assert.Len(t, recs, 30)
		}
		for _, r := range recs {
			assert.False(t, ids[r.RecordID], "duplicate id %s", r.RecordID)
			ids[r.RecordID] = true
			var input map[string]any
			require.NoError(t, json.Unmarshal(r.ModelInput, &input))
			assert.Equal(t, "bedrock-2023-05-31", input["anthropic_version"])
		}
		total += len(recs)
	}
	assert.Equal(t, 100, total)

	idx, err := LoadIndex(ctx, store, testBucket, "runs/job1")
	require.NoError(t, err)
	assert.Len(t, idx, 100)
	for id := range ids {
		assert.Contains(t, idx, id)
	}
}

func TestManifestBuilder_DefaultCapSingleManifest(t *testing.T) {
	store := objstore.NewMemStore()
	units, reader := makeUnits(150, "R1")
	b := NewManifestBuilder(store, providers.AmazonAdapter{}, BuilderOptions{Bucket: testBucket})
	sub, err := b.Build(context.Background(), reader, units, "p")
	require.NoError(t, err)
	assert.Len(t, sub.ManifestKeys, 1)
	assert.Equal(t, 150, sub.RecordCount)
}

func TestManifestBuilder_UnreadableFiles(t *testing.T) {
	store := objstore.NewMemStore()
	units, reader := makeUnits(3, "R1", "R2")
	delete(reader, "src/f001.py")

	b := NewManifestBuilder(store, providers.AnthropicAdapter{}, BuilderOptions{Bucket: testBucket})
	sub, err := b.Build(context.Background(), reader, units, "p")
	require.NoError(t, err)

	assert.Equal(t, 4, sub.RecordCount)
	require.Len(t, sub.Errors, 1)
	assert.Equal(t, "src/f001.py", sub.Errors[0].File)
	assert.Equal(t, []string{"R1", "R2"}, sub.Errors[0].Rules)
}

func TestManifestBuilder_RefusesUsedPrefix(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	b := NewManifestBuilder(store, providers.AnthropicAdapter{}, BuilderOptions{Bucket: testBucket, MaxRecords: 2})

	units, reader := makeUnits(3, "R1")
	first, err := b.Build(ctx, reader, units, "p")
	require.NoError(t, err)
	require.Len(t, first.ManifestKeys, 2)

	smaller, _ := makeUnits(1, "R1")
	_, err = b.Build(ctx, reader, smaller, "p")
	require.ErrorIs(t, err, ErrPrefixInUse)

	keys, err := store.List(ctx, testBucket, ManifestDir("p"))
	require.NoError(t, err)
	assert.Equal(t, first.ManifestKeys, keys, "earlier manifests must be left untouched")

	_, err = b.Build(ctx, reader, smaller, "q")
	assert.NoError(t, err)
}

func TestManifestBuilder_Empty(t *testing.T) {
	store := objstore.NewMemStore()
	b := NewManifestBuilder(store, providers.AnthropicAdapter{}, BuilderOptions{Bucket: testBucket})
	sub, err := b.Build(context.Background(), mapReader{}, nil, "p")
	require.NoError(t, err)
	assert.Empty(t, sub.ManifestKeys)
	assert.Zero(t, sub.RecordCount)

	_, err = (&SpoolSubmitter{Store: store}).Submit(context.Background(), sub, testModel)
	assert.Error(t, err)
}

func TestSpoolSubmitter(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	units, reader := makeUnits(2, "R1")
	sub, err := NewManifestBuilder(store, providers.AnthropicAdapter{}, BuilderOptions{Bucket: testBucket}).Build(ctx, reader, units, "p")
	require.NoError(t, err)

	s := &SpoolSubmitter{Store: store, NewID: func() string { return "job-1" }}
	id, err := s.Submit(ctx, sub, testModel)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	data, err := store.Get(ctx, testBucket, "p/jobs/job-1.json")
	require.NoError(t, err)
	var job Job
	require.NoError(t, json.Unmarshal(data, &job))
	assert.Equal(t, testModel, job.ModelID)
	assert.Equal(t, sub.ManifestKeys, job.ManifestKeys)
	assert.Equal(t, "p/output", job.OutputPrefix)
	assert.Equal(t, 2, job.RecordCount)
}

func newProcessor(t *testing.T, store objstore.Store) *OutputProcessor {
	t.Helper()
	p, err := NewOutputProcessor(store, providers.DefaultRegistry(), testModel)
	require.NoError(t, err)
	return p
}

func TestNewOutputProcessor_Unsupported(t *testing.T) {
	_, err := NewOutputProcessor(objstore.NewMemStore(), providers.DefaultRegistry(), "meta.llama3-8b-instruct-v1:0")
	assert.True(t, providers.IsUnsupportedModel(err))
}

func TestProcessRecord(t *testing.T) {
	p := newProcessor(t, objstore.NewMemStore())

	rec := p.ProcessRecord([]byte(`{"recordId":"r1","modelInput":{"x":1},"modelOutput":` + anthropicOutput("ok") + `}`))
	assert.Equal(t, "r1", rec.RecordID)
	require.NotNil(t, rec.Response)
	assert.Nil(t, rec.Error)
	assert.Equal(t, "ok", rec.Response.Content)
	assert.Equal(t, 10, rec.Response.InputTokens)
	assert.JSONEq(t, `{"x":1}`, string(rec.ModelInput))

	rec = p.ProcessRecord([]byte(`{"recordId":"r2","modelInput":{"x":1},"error":{"errorMessage":"throttled","errorCode":429}}`))
	assert.Nil(t, rec.Response)
	require.NotNil(t, rec.Error)
	assert.Equal(t, RecordError{Message: "throttled", Code: 429}, *rec.Error)

	rec = p.ProcessRecord([]byte(`{"recordId":"r3"}`))
	assert.Nil(t, rec.Response)
	require.NotNil(t, rec.Error)
	assert.Equal(t, RecordError{Message: "No model output or error found", Code: 500}, *rec.Error)
}

func TestProcessRecord_ErrorWins(t *testing.T) {
	p := newProcessor(t, objstore.NewMemStore())
	rec := p.ProcessRecord([]byte(`{"recordId":"r1","modelOutput":` + anthropicOutput("ok") + `,"error":{"errorMessage":"bad","errorCode":"400"}}`))
	assert.Nil(t, rec.Response)
	require.NotNil(t, rec.Error)
	assert.Equal(t, 400, rec.Error.Code)
}

func TestProcessRecord_Malformed(t *testing.T) {
	p := newProcessor(t, objstore.NewMemStore())

	rec := p.ProcessRecord([]byte(`{"recordId":"r9","modelOutput":{`))
	assert.Equal(t, "r9", rec.RecordID)
	require.NotNil(t, rec.Error)

	rec = p.ProcessRecord([]byte(`garbage`))
	assert.Equal(t, UnknownRecordID, rec.RecordID)
	require.NotNil(t, rec.Error)

	rec = p.ProcessRecord([]byte(`{"recordId":"r10","modelOutput":{"content":[]}}`))
	assert.Equal(t, "r10", rec.RecordID)
	require.NotNil(t, rec.Error)
	assert.Nil(t, rec.Response)
}

func writeOutput(t *testing.T, store objstore.Store, key string, lines []string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), testBucket, key, []byte(strings.Join(lines, "\n"))))
}

func TestProcessOutput_OrderAndBlankLines(t *testing.T) {
	store := objstore.NewMemStore()
	lines := []string{
		`{"recordId":"a","modelOutput":` + anthropicOutput("1") + `}`,
		``,
		`{"recordId":"b","error":{"errorMessage":"x","errorCode":400}}`,
		`   `,
		`not json`,
		`{"recordId":"d"}`,
		``,
	}
	writeOutput(t, store, "p/output/manifest-0000.jsonl.out", lines)

	p := newProcessor(t, store)
	var ids []string
	for rec, err := range p.ProcessOutput(context.Background(), testBucket, "p/output/manifest-0000.jsonl.out") {
		require.NoError(t, err)
		ids = append(ids, rec.RecordID)
	}
	assert.Equal(t, []string{"a", "b", UnknownRecordID, "d"}, ids)
}

func TestProcessOutput_OversizedLineIsErrorRecord(t *testing.T) {
	store := objstore.NewMemStore()
	long := `{"recordId":"r1","modelInput":"` + strings.Repeat("x", 200<<10) + `"}`
	lines := []string{
		long,
		`{"recordId":"r2","modelOutput":` + anthropicOutput("ok") + `}`,
	}
	writeOutput(t, store, "p/output/big.out", lines)

	p := newProcessor(t, store)
	p.MaxLineBytes = 1024
	var recs []OutputRecord
	for rec, err := range p.ProcessOutput(context.Background(), testBucket, "p/output/big.out") {
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	require.Len(t, recs, 2)
	assert.Equal(t, "r1", recs[0].RecordID)
	require.NotNil(t, recs[0].Error)
	assert.Contains(t, recs[0].Error.Message, "exceeds 1024 bytes")
	assert.Equal(t, "r2", recs[1].RecordID)
	assert.Nil(t, recs[1].Error)
	require.NotNil(t, recs[1].Response)
}

func TestProcessOutput_MissingObject(t *testing.T) {
	p := newProcessor(t, objstore.NewMemStore())
	var gotErr error
	n := 0
	for _, err := range p.ProcessOutput(context.Background(), testBucket, "missing.out") {
		n++
		gotErr = err
	}
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, gotErr, objstore.ErrNotFound)
}

func TestProcessOutput_EarlyBreak(t *testing.T) {
	store := objstore.NewMemStore()
	writeOutput(t, store, "o.out", []string{`{"recordId":"a"}`, `{"recordId":"b"}`, `{"recordId":"c"}`})
	p := newProcessor(t, store)
	n := 0
	for range p.ProcessOutput(context.Background(), testBucket, "o.out") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestObjectRecordStore(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()

	s := NewObjectRecordStore(store, testBucket, "runs/j")
	err := s.LoadState(ctx)
	assert.ErrorIs(t, err, ErrStateNotFound)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
	require.NoError(t, LoadOrInit(ctx, s))

	s.AddRecord("r1", json.RawMessage(`{"findings":[]}`))
	require.NoError(t, s.PersistState(ctx))

	data, err := store.Get(ctx, testBucket, "runs/j/state.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"r1":{"findings":[]}}`, string(data))

	s2 := NewObjectRecordStore(store, testBucket, "runs/j")
	require.NoError(t, s2.LoadState(ctx))
	got, ok := s2.GetRecord("r1")
	require.True(t, ok)
	assert.JSONEq(t, `{"findings":[]}`, string(got))
	_, ok = s2.GetRecord("r2")
	assert.False(t, ok)
}

func TestObjectRecordStore_CorruptState(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	require.NoError(t, store.Put(ctx, testBucket, "j/state.json", []byte("{")))
	s := NewObjectRecordStore(store, testBucket, "j")
	err := LoadOrInit(ctx, s)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStateNotFound))
}

func TestMemoryRecordStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRecordStore()
	assert.ErrorIs(t, s.LoadState(ctx), ErrStateNotFound)

	s.AddRecord("a", json.RawMessage(`1`))
	require.NoError(t, s.PersistState(ctx))
	s.AddRecord("b", json.RawMessage(`2`))
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.LoadState(ctx))
	assert.Equal(t, 1, s.Len())
	_, ok := s.GetRecord("b")
	assert.False(t, ok)
}

// batchFixture writes an output file covering each record kind and returns
// the matching index.
func batchFixture(t *testing.T, store objstore.Store) (RecordIndex, string) {
	t.Helper()
	idx := RecordIndex{
		"r-violation": {File: "main.py", Rule: "PY-001"},
		"r-compliant": {File: "main.py", Rule: "PY-002"},
		"r-error":     {File: "src/__init__.py", Rule: "PY-001"},
		"r-garbled":   {File: "src/__init__.py", Rule: "PY-002"},
	}
	violation := `{"compliant": false, "findings": [{"snippet":"def f(x=[])","description":"mutable default","suggestion":"use None"},{"snippet":"def g(y={})","description":"mutable default","suggestion":"use None"}]}`
	lines := []string{
		`{"recordId":"r-violation","modelOutput":` + anthropicOutput(violation) + `}`,
		`{"recordId":"r-compliant","modelOutput":` + anthropicOutput(`{"compliant": true, "findings": []}`) + `}`,
		`{"recordId":"r-error","error":{"errorMessage":"ValidationException","errorCode":400}}`,
		`{"recordId":"r-garbled","modelOutput":` + anthropicOutput(`I cannot answer`) + `}`,
	}
	key := OutputKey("p", ManifestKey("p", 0))
	writeOutput(t, store, key, lines)
	return idx, key
}

func TestExtractAll_AndIdempotentResume(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	idx, key := batchFixture(t, store)
	p := newProcessor(t, store)

	state := NewObjectRecordStore(store, testBucket, "p")
	require.NoError(t, LoadOrInit(ctx, state))
	ex := &Extractor{Store: state, Index: idx}

	res, err := ex.ExtractAll(ctx, p.ProcessOutput(ctx, testBucket, key))
	require.NoError(t, err)
	assert.Len(t, res.Findings, 2)
	assert.Len(t, res.Errors, 2)
	assert.Zero(t, res.Skipped)
	for _, f := range res.Findings {
		assert.Equal(t, "PY-001", f.Rule)
		assert.Equal(t, "main.py", f.File)
	}
	require.NoError(t, state.PersistState(ctx))

	// A second run against persisted state produces nothing new.
	state2 := NewObjectRecordStore(store, testBucket, "p")
	require.NoError(t, LoadOrInit(ctx, state2))
	ex2 := &Extractor{Store: state2, Index: idx}
	res2, err := ex2.ExtractAll(ctx, p.ProcessOutput(ctx, testBucket, key))
	require.NoError(t, err)
	assert.Empty(t, res2.Findings)
	assert.Empty(t, res2.Errors)
	assert.Equal(t, 4, res2.Skipped)
	assert.Len(t, res2.PriorFindings, 2)
	assert.Len(t, res2.PriorErrors, 2)
}

func TestExtract_PartialResume(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	idx, key := batchFixture(t, store)
	p := newProcessor(t, store)

	state := NewMemoryRecordStore()
	state.AddRecord("r-violation", json.RawMessage(`{}`))
	state.AddRecord("r-error", json.RawMessage(`{}`))
	ex := &Extractor{Store: state, Index: idx}

	res, err := ex.ExtractAll(ctx, p.ProcessOutput(ctx, testBucket, key))
	require.NoError(t, err)
	// two unprocessed records: one compliant, one garbled judgment
	assert.Empty(t, res.Findings)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "src/__init__.py", res.Errors[0].File)
	assert.Equal(t, []string{"PY-002"}, res.Errors[0].Rules)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 4, state.Len())
}

func TestExtract_UnknownRecord(t *testing.T) {
	state := NewMemoryRecordStore()
	ex := &Extractor{Store: state, Index: RecordIndex{}}

	r, err := ex.Extract(OutputRecord{RecordID: UnknownRecordID, Error: &RecordError{Message: "bad line", Code: 500}})
	require.NoError(t, err)
	require.NotNil(t, r.Error)
	assert.Contains(t, r.Error.Error, "bad line")
	assert.Equal(t, 0, state.Len(), "unrecoverable ids are never marked processed")

	r, err = ex.Extract(OutputRecord{RecordID: "stray", Response: &providers.Response{Content: `{"compliant":true}`}})
	require.NoError(t, err)
	require.NotNil(t, r.Error)
	_, ok := state.GetRecord("stray")
	assert.True(t, ok)
}

func TestExtractAll_PersistEvery(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	idx, key := batchFixture(t, store)
	p := newProcessor(t, store)

	state := NewObjectRecordStore(store, testBucket, "p")
	ex := &Extractor{Store: state, Index: idx, PersistEvery: 2}
	_, err := ex.ExtractAll(ctx, p.ProcessOutput(ctx, testBucket, key))
	require.NoError(t, err)

	data, err := store.Get(ctx, testBucket, StateKey("p"))
	require.NoError(t, err)
	var persisted map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Len(t, persisted, 4)
}

func TestExtractAll_SequenceError(t *testing.T) {
	p := newProcessor(t, objstore.NewMemStore())
	ex := &Extractor{Store: NewMemoryRecordStore(), Index: RecordIndex{}}
	_, err := ex.ExtractAll(context.Background(), p.ProcessOutput(context.Background(), testBucket, "missing"))
	assert.ErrorIs(t, err, objstore.ErrNotFound)
}

func TestOutputKey(t *testing.T) {
	assert.Equal(t, "p/output/manifest-0003.jsonl.out", OutputKey("p", ManifestKey("p", 3)))
	assert.Equal(t, "p/jobs/j.json", JobKey("p", "j"))
	assert.Equal(t, "p/records.json", IndexKey("p"))
}
