package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts LLM providers for document analysis.
type Client interface {
	AnalyzeDocument(ctx context.Context, input AnalyzeInput) (json.RawMessage, error)
}

// Embedder abstracts embedding providers for document vectorization.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ModelLister reports chat models available at the provider.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// AnalyzeInput captures the inputs needed for document analysis.
type AnalyzeInput struct {
	FileName   string
	Content    string
	Model      string
	Dimensions []string
}

// ModelInfo identifies a selectable model.
type ModelInfo struct {
	ID       string `json:"modelId"`
	Provider string `json:"provider"`
}

// ErrThrottled marks rate-limit responses from the provider; callers may retry with backoff.
var ErrThrottled = errors.New("llm throttled")

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

type fixJSONKey struct{}

// WithFixJSON returns a context signaling a fix-JSON retry with the given raw output.
func WithFixJSON(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, fixJSONKey{}, raw)
}

// FixJSONFromContext returns the raw JSON to repair, if any.
func FixJSONFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(fixJSONKey{})
	raw, ok := val.(string)
	return raw, ok
}

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// AnalyzeDocument returns ErrNotImplemented.
func (PlaceholderClient) AnalyzeDocument(ctx context.Context, input AnalyzeInput) (json.RawMessage, error) {
	_ = ctx
	_ = input
	return nil, ErrNotImplemented
}

// Embed returns ErrNotImplemented.
func (PlaceholderClient) Embed(ctx context.Context, text string) ([]float64, error) {
	_ = ctx
	_ = text
	return nil, ErrNotImplemented
}
