package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AmazonAdapter speaks the Nova messages-v1 format, whose responses nest
// text under output.message.content and use camelCase usage fields.
type AmazonAdapter struct{}

func (AmazonAdapter) Family() Family { return FamilyAmazon }

func (AmazonAdapter) BuildRequest(p Prompt) (json.RawMessage, error) {
	temp := p.Temperature
	body := novaRequest{
		SchemaVersion: "messages-v1",
		Messages: []novaMessage{
			{Role: "user", Content: []novaText{{Text: p.User}}},
		},
		InferenceConfig: novaInferenceConfig{
			MaxTokens:   maxTokensOrDefault(p.MaxTokens),
			Temperature: &temp,
		},
	}
	if p.System != "" {
		body.System = []novaText{{Text: p.System}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling nova request: %w", err)
	}
	return payload, nil
}

func (AmazonAdapter) ParseResponse(payload json.RawMessage) (Response, error) {
	var result novaResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return Response{}, fmt.Errorf("parsing nova response: %w", err)
	}

	var content strings.Builder
	for _, part := range result.Output.Message.Content {
		content.WriteString(part.Text)
	}
	if content.Len() == 0 {
		return Response{}, fmt.Errorf("empty text content in nova response")
	}

	role := result.Output.Message.Role
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

type novaRequest struct {
	SchemaVersion   string              `json:"schemaVersion"`
	System          []novaText          `json:"system,omitempty"`
	Messages        []novaMessage       `json:"messages"`
	InferenceConfig novaInferenceConfig `json:"inferenceConfig"`
}

type novaText struct {
	Text string `json:"text"`
}

type novaMessage struct {
	Role    string     `json:"role"`
	Content []novaText `json:"content"`
}

type novaInferenceConfig struct {
	MaxTokens   int      `json:"maxTokens"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type novaResponse struct {
	Output struct {
		Message novaMessage `json:"message"`
	} `json:"output"`
	StopReason string    `json:"stopReason"`
	Usage      novaUsage `json:"usage"`
}

type novaUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}
