// Package vector wraps the Qdrant similarity index behind the narrow
// operations the assistant needs: existence probe, destructive create,
// batched upload, and threshold-filtered search.
package vector

import (
	"errors"
	"fmt"
)

// Mode selects the search strategy.
type Mode string

const (
	// ModeSemantic is pure vector similarity with client-side score
	// threshold filtering.
	ModeSemantic Mode = "semantic"
	// ModeHybrid combines vector similarity with a full-text match on the
	// chunk text, plus an optional exact category filter.
	ModeHybrid Mode = "hybrid"
)

// Policy defaults. The pipeline overrides threshold/limit with its own
// constants; these are the adapter-level baselines.
const (
	DefaultThreshold float32 = 0.7
	DefaultLimit             = 3
	DefaultBatchSize         = 100

	// defaultOverfetch compensates for running the threshold cut on the
	// client: fetch limit×N candidates so enough survive the cut. Shrinking
	// it silently drops qualifying matches past the fetch window.
	defaultOverfetch = 2
)

// SearchRequest describes one similarity query.
type SearchRequest struct {
	Vector    []float32
	Mode      Mode
	QueryText string // required for ModeHybrid
	Threshold float32
	Limit     int

	// CategoryFilter restricts hybrid search to an exact category match.
	CategoryFilter string

	// OverfetchFactor overrides the ×2 candidate over-fetch for semantic
	// search. Zero keeps the default.
	OverfetchFactor int
}

// SearchResult is a single match from the index.
type SearchResult struct {
	ID       uint64         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float32        `json:"score"`
}

// Category returns the result's category, or fallback when absent.
func (r SearchResult) Category(fallback string) string {
	if c, ok := r.Metadata["category"].(string); ok && c != "" {
		return c
	}
	return fallback
}

// StoreError reports a failure talking to the vector index.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InvalidModeError marks a programmer error: an unrecognized search mode.
type InvalidModeError struct {
	Mode Mode
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid search mode %q: use %q or %q", e.Mode, ModeSemantic, ModeHybrid)
}

// ErrQueryTextRequired is returned when hybrid search is requested without
// the raw query text.
var ErrQueryTextRequired = errors.New("query text is required for hybrid search")
