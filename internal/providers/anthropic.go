package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

const anthropicBedrockVersion = "bedrock-2023-05-31"

// AnthropicAdapter speaks the Anthropic messages format.
type AnthropicAdapter struct{}

func (AnthropicAdapter) Family() Family { return FamilyAnthropic }

func (AnthropicAdapter) BuildRequest(p Prompt) (json.RawMessage, error) {
	temp := p.Temperature
	body := anthropicRequest{
		AnthropicVersion: anthropicBedrockVersion,
		MaxTokens:        maxTokensOrDefault(p.MaxTokens),
		System:           p.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: p.User},
		},
		Temperature: &temp,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling anthropic request: %w", err)
	}
	return payload, nil
}

func (AnthropicAdapter) ParseResponse(payload json.RawMessage) (Response, error) {
	var result anthropicResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return Response{}, fmt.Errorf("parsing anthropic response: %w", err)
	}

	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" || block.Type == "" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return Response{}, fmt.Errorf("empty text content in anthropic response")
	}

	role := result.Role
	if role == "" {
		role = "assistant"
	}
	return Response{
		Role:         role,
		Content:      content.String(),
		StopReason:   result.StopReason,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}, nil
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Role       string           `json:"role"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
