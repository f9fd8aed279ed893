package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestParseModelID(t *testing.T) {
	tests := []struct {
		id     string
		region string
		family Family
		name   string
	}{
		{"anthropic.claude-3-haiku-20240307-v1:0", "", FamilyAnthropic, "claude-3-haiku-20240307-v1:0"},
		{"us.anthropic.claude-sonnet-4-20250514-v1:0", "us", FamilyAnthropic, "claude-sonnet-4-20250514-v1:0"},
		{"eu.amazon.nova-pro-v1:0", "eu", FamilyAmazon, "nova-pro-v1:0"},
		{"apac.amazon.nova-lite-v1:0", "apac", FamilyAmazon, "nova-lite-v1:0"},
		{"us-gov.anthropic.claude-3-5-sonnet-20240620-v1:0", "us-gov", FamilyAnthropic, "claude-3-5-sonnet-20240620-v1:0"},
		{"global.anthropic.claude-sonnet-4-5-20250929-v1:0", "global", FamilyAnthropic, "claude-sonnet-4-5-20250929-v1:0"},
		{"openai.gpt-oss-120b-1:0", "", FamilyOpenAI, "gpt-oss-120b-1:0"},
		// two letters followed by a single dot is a family, not a region
		{"ai.model", "", Family("ai"), "model"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ref, err := ParseModelID(tt.id)
			if err != nil {
				t.Fatalf("ParseModelID(%q) error: %v", tt.id, err)
			}
			if ref.Region != tt.region || ref.Family != tt.family || ref.Name != tt.name {
				t.Errorf("ParseModelID(%q) = %+v, want region=%q family=%q name=%q", tt.id, ref, tt.region, tt.family, tt.name)
			}
		})
	}
}

func TestParseModelID_Malformed(t *testing.T) {
	for _, id := range []string{"", "claude", "us.", ".model"} {
		if _, err := ParseModelID(id); err == nil {
			t.Errorf("ParseModelID(%q) expected error", id)
		}
	}
}

func TestRegistry_Adapter(t *testing.T) {
	reg := DefaultRegistry()
	tests := map[string]Family{
		"us.anthropic.claude-sonnet-4-20250514-v1:0": FamilyAnthropic,
		"amazon.nova-pro-v1:0":                       FamilyAmazon,
		"openai.gpt-oss-20b-1:0":                     FamilyOpenAI,
	}
	for id, want := range tests {
		a, err := reg.Adapter(id)
		if err != nil {
			t.Fatalf("Adapter(%q) error: %v", id, err)
		}
		if a.Family() != want {
			t.Errorf("Adapter(%q).Family() = %q, want %q", id, a.Family(), want)
		}
	}
	if got := len(reg.Families()); got != 3 {
		t.Errorf("Families() len = %d, want 3", got)
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	reg := DefaultRegistry()
	for _, id := range []string{"us.meta.llama3-70b-instruct-v1:0", "cohere.command-r-v1:0", "nonsense"} {
		_, err := reg.Adapter(id)
		if err == nil {
			t.Fatalf("Adapter(%q) expected error", id)
		}
		if !IsUnsupportedModel(err) {
			t.Errorf("Adapter(%q) error %v is not UnsupportedModelError", id, err)
		}
		wrapped := fmt.Errorf("setup: %w", err)
		var um *UnsupportedModelError
		if !errors.As(wrapped, &um) || um.ModelID != id {
			t.Errorf("errors.As(%v) = %+v", wrapped, um)
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(AnthropicAdapter{})
	if _, err := reg.Adapter("amazon.nova-pro-v1:0"); !IsUnsupportedModel(err) {
		t.Fatalf("expected unsupported before Register, got %v", err)
	}
	reg.Register(AmazonAdapter{})
	if _, err := reg.Adapter("amazon.nova-pro-v1:0"); err != nil {
		t.Fatalf("Adapter after Register: %v", err)
	}
}

func TestAnthropicAdapter_BuildRequest(t *testing.T) {
	payload, err := AnthropicAdapter{}.BuildRequest(Prompt{System: "sys", User: "hello", Temperature: 0})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatal(err)
	}
	if got["anthropic_version"] != anthropicBedrockVersion {
		t.Errorf("anthropic_version = %v", got["anthropic_version"])
	}
	if got["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("max_tokens = %v, want default", got["max_tokens"])
	}
	if got["system"] != "sys" {
		t.Errorf("system = %v", got["system"])
	}
	if _, ok := got["temperature"]; !ok {
		t.Error("temperature 0 should still be sent")
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 1 || msgs[0].(map[string]any)["content"] != "hello" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestAnthropicAdapter_ParseResponse(t *testing.T) {
	payload := `{"id":"msg_1","type":"message","role":"assistant",
		"content":[{"type":"text","text":"{\"compliant\":"},{"type":"text","text":"true}"}],
		"stop_reason":"end_turn","usage":{"input_tokens":120,"output_tokens":8}}`
	resp, err := AnthropicAdapter{}.ParseResponse(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	want := Response{Role: "assistant", Content: `{"compliant":true}`, StopReason: "end_turn", InputTokens: 120, OutputTokens: 8}
	if resp != want {
		t.Errorf("ParseResponse = %+v, want %+v", resp, want)
	}
}

func TestAmazonAdapter_BuildRequest(t *testing.T) {
	payload, err := AmazonAdapter{}.BuildRequest(Prompt{System: "sys", User: "hello", MaxTokens: 512, Temperature: 0.2})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	var got novaRequest
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.SchemaVersion != "messages-v1" {
		t.Errorf("schemaVersion = %q", got.SchemaVersion)
	}
	if len(got.System) != 1 || got.System[0].Text != "sys" {
		t.Errorf("system = %+v", got.System)
	}
	if got.InferenceConfig.MaxTokens != 512 {
		t.Errorf("maxTokens = %d", got.InferenceConfig.MaxTokens)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content[0].Text != "hello" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestAmazonAdapter_ParseResponse(t *testing.T) {
	payload := `{"output":{"message":{"role":"assistant","content":[{"text":"[]"}]}},
		"stopReason":"end_turn","usage":{"inputTokens":50,"outputTokens":2,"totalTokens":52}}`
	resp, err := AmazonAdapter{}.ParseResponse(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	want := Response{Role: "assistant", Content: "[]", StopReason: "end_turn", InputTokens: 50, OutputTokens: 2}
	if resp != want {
		t.Errorf("ParseResponse = %+v, want %+v", resp, want)
	}
}

func TestOpenAIAdapter_RoundTrip(t *testing.T) {
	payload, err := OpenAIAdapter{}.BuildRequest(Prompt{System: "sys", User: "hi"})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	var req openaiRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		t.Fatal(err)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Temperature != nil {
		t.Error("zero temperature should be omitted")
	}

	out := `{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":10,"completion_tokens":1}}`
	resp, err := OpenAIAdapter{}.ParseResponse(json.RawMessage(out))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	want := Response{Role: "assistant", Content: "ok", StopReason: "stop", InputTokens: 10, OutputTokens: 1}
	if resp != want {
		t.Errorf("ParseResponse = %+v, want %+v", resp, want)
	}
}

func TestAdapters_EmptyContent(t *testing.T) {
	cases := map[string]struct {
		adapter Adapter
		payload string
	}{
		"anthropic":       {AnthropicAdapter{}, `{"content":[],"stop_reason":"end_turn"}`},
		"amazon":          {AmazonAdapter{}, `{"output":{"message":{"content":[]}}}`},
		"openai":          {OpenAIAdapter{}, `{"choices":[{"message":{"content":""}}]}`},
		"openai-nochoice": {OpenAIAdapter{}, `{"choices":[]}`},
		"anthropic-bad":   {AnthropicAdapter{}, `not json`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := tc.adapter.ParseResponse(json.RawMessage(tc.payload)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
