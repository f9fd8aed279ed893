package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Prompt is the canonical model input: a system prompt, a user prompt and
// generation parameters.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Response is the canonical model output, independent of provider.
type Response struct {
	Role         string `json:"role"`
	Content      string `json:"content"`
	StopReason   string `json:"stopReason"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
}

// Family identifies a provider payload format.
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyAmazon    Family = "amazon"
	FamilyOpenAI    Family = "openai"
)

const defaultMaxTokens = 4096

// ModelRef is a parsed model identifier such as
// "us.anthropic.claude-sonnet-4-20250514-v1:0".
type ModelRef struct {
	ID     string
	Region string
	Family Family
	Name   string
}

var regionPrefix = regexp.MustCompile(`^([a-z]{2}|apac|us-gov|global)\.`)

// ParseModelID strips an optional region-routing prefix and splits the
// provider family from the model name.
func ParseModelID(id string) (ModelRef, error) {
	ref := ModelRef{ID: id}
	rest := strings.TrimSpace(id)
	if m := regionPrefix.FindStringSubmatch(rest); m != nil {
		// The tag is only a region when a provider and model still follow it.
		if strings.Count(rest, ".") >= 2 {
			ref.Region = m[1]
			rest = rest[len(m[0]):]
		}
	}
	family, name, ok := strings.Cut(rest, ".")
	if !ok || family == "" || name == "" {
		return ModelRef{}, fmt.Errorf("malformed model identifier %q: want [region.]provider.model", id)
	}
	ref.Family = Family(family)
	ref.Name = name
	return ref, nil
}

// Adapter translates between the canonical prompt/response shapes and one
// provider family's wire format.
type Adapter interface {
	Family() Family
	BuildRequest(p Prompt) (json.RawMessage, error)
	ParseResponse(payload json.RawMessage) (Response, error)
}

// UnsupportedModelError is returned when no adapter is registered for a
// model's provider family.
type UnsupportedModelError struct {
	ModelID string
	Family  Family
}

func (e *UnsupportedModelError) Error() string {
	if e.Family == "" {
		return fmt.Sprintf("unsupported model %q", e.ModelID)
	}
	return fmt.Sprintf("unsupported model %q: no adapter for provider %q", e.ModelID, e.Family)
}

// IsUnsupportedModel reports whether err is or wraps an *UnsupportedModelError.
func IsUnsupportedModel(err error) bool {
	var um *UnsupportedModelError
	return errors.As(err, &um)
}

// Registry maps provider families to adapters.
type Registry struct {
	adapters map[Family]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Family]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in adapter.
func DefaultRegistry() *Registry {
	return NewRegistry(AnthropicAdapter{}, AmazonAdapter{}, OpenAIAdapter{})
}

// Register adds or replaces the adapter for its family.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Family()] = a
}

// Families returns the registered families.
func (r *Registry) Families() []Family {
	out := make([]Family, 0, len(r.adapters))
	for f := range r.adapters {
		out = append(out, f)
	}
	return out
}

// Adapter returns the adapter for a model identifier.
func (r *Registry) Adapter(modelID string) (Adapter, error) {
	ref, err := ParseModelID(modelID)
	if err != nil {
		return nil, &UnsupportedModelError{ModelID: modelID}
	}
	a, ok := r.adapters[ref.Family]
	if !ok {
		return nil, &UnsupportedModelError{ModelID: modelID, Family: ref.Family}
	}
	return a, nil
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
