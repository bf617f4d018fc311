package llm

import "context"

// Provider is the interface all hosted model backends must implement.
type Provider interface {
	// Complete sends a rendered prompt and returns a single completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
}

// RequestOptions tunes a single completion call. Nil fields keep the
// provider's defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}
