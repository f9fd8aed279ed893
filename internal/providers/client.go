package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/rulecheck/internal/metrics"
)

// Completer produces a canonical response for a canonical prompt.
type Completer interface {
	Complete(ctx context.Context, modelID string, p Prompt) (Response, error)
}

// Client runs a prompt through the model's adapter and an Invoker, under the
// retrier's policies.
type Client struct {
	registry *Registry
	invoker  Invoker
	retrier  *Retrier
	metrics  *metrics.Metrics
}

// NewClient creates a Client. A nil retrier means DefaultPolicies.
func NewClient(reg *Registry, inv Invoker, retrier *Retrier, m *metrics.Metrics) *Client {
	if retrier == nil {
		retrier = NewRetrier(DefaultPolicies()...)
	}
	if retrier.OnRetry == nil {
		retrier.OnRetry = func(p RetryPolicy, attempt int, err error, wait time.Duration) {
			m.Retry(p.Name)
		}
	}
	return &Client{registry: reg, invoker: inv, retrier: retrier, metrics: m}
}

// Complete builds the provider payload, invokes the model and normalizes
// the answer. Unsupported models fail before any call is made.
func (c *Client) Complete(ctx context.Context, modelID string, p Prompt) (Response, error) {
	adapter, err := c.registry.Adapter(modelID)
	if err != nil {
		return Response{}, err
	}
	body, err := adapter.BuildRequest(p)
	if err != nil {
		return Response{}, err
	}

	start := time.Now()
	var raw json.RawMessage
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = c.invoker.Invoke(ctx, modelID, body)
		return callErr
	})
	c.metrics.ObserveCall(time.Since(start), err)
	if err != nil {
		return Response{}, err
	}

	resp, err := adapter.ParseResponse(raw)
	if err != nil {
		return Response{}, fmt.Errorf("model %s: %w", modelID, err)
	}
	return resp, nil
}
