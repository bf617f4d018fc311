// Package pipeline orchestrates one support query end to end: greeting
// short-circuit, query embedding, threshold-filtered retrieval, context
// assembly, and a single LLM completion.
//
// The pipeline holds no per-query state and never persists anything;
// recording the turn in conversation history is the caller's job. History
// is also deliberately NOT fed back into the prompt — every query is
// answered independently of prior turns.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/shopclerk/shopclerk/internal/llm"
	"github.com/shopclerk/shopclerk/internal/vector"
)

// Policy constants. Configurable via options, but these defaults define the
// assistant's baseline behavior.
const (
	DefaultThreshold   float32 = 0.65
	DefaultLimit               = 3
	defaultTemperature         = 0.3
)

// Embedder turns query text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces a single completion for a rendered prompt.
type Completer interface {
	Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error)
}

// Searcher runs similarity queries against the FAQ index.
type Searcher interface {
	Search(ctx context.Context, req vector.SearchRequest) ([]vector.SearchResult, error)
}

// Response is the pipeline's answer to one query. Sources is non-empty only
// when retrieval succeeded and the model was consulted; greeting, fallback,
// and error branches always return it empty.
type Response struct {
	Answer  string                `json:"answer"`
	Sources []vector.SearchResult `json:"sources"`
}

// Pipeline answers support queries. Collaborators are injected; there is no
// process-global state.
type Pipeline struct {
	embedder  Embedder
	searcher  Searcher
	completer Completer

	threshold   float32
	limit       int
	temperature float64
	rng         *rand.Rand
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithThreshold overrides the minimum similarity score.
func WithThreshold(t float32) Option {
	return func(p *Pipeline) { p.threshold = t }
}

// WithLimit overrides the retrieval result cap.
func WithLimit(n int) Option {
	return func(p *Pipeline) { p.limit = n }
}

// WithRand injects the randomness source used to pick greeting and fallback
// responses, so tests can pin the selection.
func WithRand(rng *rand.Rand) Option {
	return func(p *Pipeline) { p.rng = rng }
}

// WithTemperature overrides the completion temperature.
func WithTemperature(t float64) Option {
	return func(p *Pipeline) { p.temperature = t }
}

// New builds a Pipeline with default policy.
func New(embedder Embedder, searcher Searcher, completer Completer, opts ...Option) *Pipeline {
	p := &Pipeline{
		embedder:    embedder,
		searcher:    searcher,
		completer:   completer,
		threshold:   DefaultThreshold,
		limit:       DefaultLimit,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return p
}

// Answer runs the pipeline and returns typed errors: *llm.ServiceError for
// embedding or completion failures, *vector.StoreError for retrieval
// failures. Greeting and empty-retrieval branches are not errors; they
// return their fixed responses with empty sources.
func (p *Pipeline) Answer(ctx context.Context, query string) (*Response, error) {
	if isGreeting(query) {
		return &Response{Answer: p.pick(greetingResponses), Sources: []vector.SearchResult{}}, nil
	}

	vecs, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, &llm.ServiceError{
			Op:  llm.OpEmbed,
			Err: fmt.Errorf("got %d vectors for one query", len(vecs)),
		}
	}

	results, err := p.searcher.Search(ctx, vector.SearchRequest{
		Vector:    vecs[0],
		Mode:      vector.ModeSemantic,
		QueryText: query,
		Threshold: p.threshold,
		Limit:     p.limit,
	})
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return &Response{Answer: p.pick(fallbackResponses), Sources: []vector.SearchResult{}}, nil
	}

	prompt := &llm.Prompt{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf(answerTemplate, formatContext(results), query),
		}},
	}
	completion, err := p.completer.Complete(ctx, prompt, &llm.RequestOptions{
		Temperature: &p.temperature,
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Answer:  strings.TrimSpace(completion.Content),
		Sources: results,
	}, nil
}

// Respond is the compatibility boundary around Answer: every failure becomes
// an ordinary degraded response embedding the error text, with empty
// sources, so callers always have something to show the user.
func (p *Pipeline) Respond(ctx context.Context, query string) *Response {
	resp, err := p.Answer(ctx, query)
	if err != nil {
		return &Response{
			Answer:  fmt.Sprintf("Sorry, I ran into a problem answering that. Please try again later.\n(Error: %v)", err),
			Sources: []vector.SearchResult{},
		}
	}
	return resp
}

// pick returns a uniformly-random element.
func (p *Pipeline) pick(choices []string) string {
	return choices[p.rng.Intn(len(choices))]
}

// isGreeting normalizes the query (lowercase, surrounding punctuation and
// whitespace trimmed) and tests substring membership against the greeting
// set.
func isGreeting(query string) bool {
	normalized := strings.Trim(strings.ToLower(query), " \t\n?!.,")
	if normalized == "" {
		return false
	}
	for _, g := range greetings {
		if strings.Contains(normalized, g) {
			return true
		}
	}
	return false
}

// formatContext enumerates retrieval results into the context block, in
// retrieval order, 1-indexed. Missing answer/source metadata gets a
// placeholder rather than an empty line.
func formatContext(results []vector.SearchResult) string {
	lines := make([]string, 0, len(results))
	for i, r := range results {
		answer := metaString(r.Metadata, "answer", "No specific answer found")
		source := metaString(r.Metadata, "source", "General Knowledge")
		lines = append(lines, fmt.Sprintf(
			"MATCH #%d (Relevance: %.0f%%):\nQUESTION: %s\nANSWER: %s\nSOURCE: %s\n",
			i+1, float64(r.Score)*100, r.Text, answer, source))
	}
	return strings.Join(lines, "\n")
}

func metaString(meta map[string]any, key, fallback string) string {
	if s, ok := meta[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
