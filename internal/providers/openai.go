package providers

import (
	"encoding/json"
	"fmt"
)

// OpenAIAdapter speaks the chat-completions format used by the open-weight
// OpenAI models.
type OpenAIAdapter struct{}

func (OpenAIAdapter) Family() Family { return FamilyOpenAI }

func (OpenAIAdapter) BuildRequest(p Prompt) (json.RawMessage, error) {
	var messages []openaiMessage
	if p.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: p.System})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: p.User})

	body := openaiRequest{
		Messages:  messages,
		MaxTokens: maxTokensOrDefault(p.MaxTokens),
	}
	if p.Temperature > 0 {
		body.Temperature = &p.Temperature
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling openai request: %w", err)
	}
	return payload, nil
}

func (OpenAIAdapter) ParseResponse(payload json.RawMessage) (Response, error) {
	var result openaiResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return Response{}, fmt.Errorf("parsing openai response: %w", err)
	}
	if len(result.Choices) == 0 {
		return Response{}, fmt.Errorf("no choices in openai response")
	}
	choice := result.Choices[0]
	if choice.Message.Content == "" {
		return Response{}, fmt.Errorf("empty text content in openai response")
	}
	role := choice.Message.Role
	if role == "" {
		role = "assistant"
	}
	return Response{
		Role:         role,
		Content:      choice.Message.Content,
		StopReason:   choice.FinishReason,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}

type openaiRequest struct {
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_completion_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}
