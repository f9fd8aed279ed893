package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Invoker performs one synchronous model call with a provider-specific
// payload and returns the raw provider response.
type Invoker interface {
	Invoke(ctx context.Context, modelID string, body json.RawMessage) (json.RawMessage, error)
}

// HTTPInvoker calls a Bedrock-compatible runtime endpoint:
// POST {endpoint}/model/{modelID}/invoke with a bearer token.
type HTTPInvoker struct {
	endpoint string
	token    string
	client   *http.Client
}

// DefaultEndpoint returns the runtime endpoint for a region.
func DefaultEndpoint(region string) string {
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
}

// NewHTTPInvoker creates an invoker. The token is read from
// RULECHECK_API_KEY, falling back to AWS_BEARER_TOKEN_BEDROCK.
func NewHTTPInvoker(endpoint, region string) (*HTTPInvoker, error) {
	token := os.Getenv("RULECHECK_API_KEY")
	if token == "" {
		token = os.Getenv("AWS_BEARER_TOKEN_BEDROCK")
	}
	if token == "" {
		return nil, &authError{message: "RULECHECK_API_KEY (or AWS_BEARER_TOKEN_BEDROCK) environment variable is not set"}
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint(region)
	}
	return &HTTPInvoker{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   &http.Client{Timeout: 300 * time.Second},
	}, nil
}

func (h *HTTPInvoker) Invoke(ctx context.Context, modelID string, body json.RawMessage) (json.RawMessage, error) {
	endpoint := h.endpoint + "/model/" + url.PathEscape(modelID) + "/invoke"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.token)

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: fmt.Errorf("sending request: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("reading response: %w", err)}
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Status: httpResp.StatusCode, Body: string(respBody)}
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, &authError{message: string(respBody)}
	case httpResp.StatusCode == http.StatusRequestTimeout || httpResp.StatusCode >= 500:
		return nil, &TransientError{Status: httpResp.StatusCode, Body: string(respBody)}
	case httpResp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}
	return respBody, nil
}
