package providers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dshills/rulecheck/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeInvoker struct {
	calls     int
	responses []json.RawMessage
	errs      []error
	lastModel string
	lastBody  json.RawMessage
}

func (f *fakeInvoker) Invoke(ctx context.Context, modelID string, body json.RawMessage) (json.RawMessage, error) {
	i := f.calls
	f.calls++
	f.lastModel = modelID
	f.lastBody = body
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.responses[len(f.responses)-1], nil
}

func TestClient_Complete(t *testing.T) {
	inv := &fakeInvoker{
		errs:      []error{&RateLimitError{Status: 429}, &TransientError{Status: 502}},
		responses: []json.RawMessage{json.RawMessage(`{"content":[{"type":"text","text":"done"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":1}}`)},
	}
	rec := &sleepRecorder{}
	retrier := NewRetrier(DefaultPolicies()...)
	retrier.sleep = rec.sleep
	m := metrics.New()

	c := NewClient(DefaultRegistry(), inv, retrier, m)
	resp, err := c.Complete(context.Background(), "us.anthropic.claude-3-haiku-20240307-v1:0", Prompt{User: "x"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != "done" || resp.InputTokens != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if inv.calls != 3 {
		t.Errorf("invoker calls = %d, want 3", inv.calls)
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "rulecheck_llm_retries_total"); err != nil || n != 2 {
		t.Errorf("retry series = %d (%v), want one per policy", n, err)
	}
}

func TestClient_UnsupportedModelMakesNoCall(t *testing.T) {
	inv := &fakeInvoker{responses: []json.RawMessage{json.RawMessage(`{}`)}}
	c := NewClient(DefaultRegistry(), inv, nil, nil)
	_, err := c.Complete(context.Background(), "meta.llama3-8b-instruct-v1:0", Prompt{User: "x"})
	if !IsUnsupportedModel(err) {
		t.Fatalf("err = %v, want unsupported model", err)
	}
	if inv.calls != 0 {
		t.Errorf("invoker calls = %d, want 0", inv.calls)
	}
}

func TestClient_ParseFailure(t *testing.T) {
	inv := &fakeInvoker{responses: []json.RawMessage{json.RawMessage(`{"output":{"message":{"content":[]}}}`)}}
	c := NewClient(DefaultRegistry(), inv, NewRetrier(), nil)
	_, err := c.Complete(context.Background(), "amazon.nova-pro-v1:0", Prompt{User: "x"})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestClient_RetriesCounted(t *testing.T) {
	inv := &fakeInvoker{
		errs:      []error{&TransientError{}, &TransientError{}},
		responses: []json.RawMessage{json.RawMessage(`{"choices":[{"message":{"content":"ok"}}]}`)},
	}
	retrier := NewRetrier(TransientPolicy(3, time.Millisecond, time.Millisecond))
	retrier.sleep = (&sleepRecorder{}).sleep
	m := metrics.New()
	c := NewClient(DefaultRegistry(), inv, retrier, m)
	if _, err := c.Complete(context.Background(), "openai.gpt-oss-20b-1:0", Prompt{User: "x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inv.lastModel != "openai.gpt-oss-20b-1:0" {
		t.Errorf("model = %q", inv.lastModel)
	}
	expected := `
# HELP rulecheck_llm_retries_total Retries by retry policy
# TYPE rulecheck_llm_retries_total counter
rulecheck_llm_retries_total{policy="transient"} 2
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "rulecheck_llm_retries_total"); err != nil {
		t.Error(err)
	}
}
