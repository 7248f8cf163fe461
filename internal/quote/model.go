// Package quote implements the retrieval engine: semantic nearest-neighbor
// search over the fragment corpus combined with structured metadata filters
// and exclusion by fragment id.
package quote

import (
	"context"
	"errors"

	"github.com/quillworks/cento/internal/corpus"
)

// Common errors for retrieval operations.
var (
	// ErrInvalidQuery marks a malformed retrieval request. It indicates an
	// orchestration bug and is never shown to end users.
	ErrInvalidQuery = errors.New("invalid retrieval query")

	// ErrIndexUnavailable marks an infrastructure failure reaching the
	// fragment store. It is the only retrieval condition treated as fatal.
	ErrIndexUnavailable = errors.New("fragment index unavailable")

	ErrEmptyFragments = errors.New("no fragments provided for insertion")
)

// DefaultMaxResults applies when a query leaves MaxResults unset.
const DefaultMaxResults = 5

// overfetchFactor widens the candidate pool before tag and exclusion
// post-filters run.
const overfetchFactor = 3

// Query is the value object built for each retrieval call. Tag filters use
// any-of semantics; scalar filters must match exactly.
type Query struct {
	// Text is the semantic query; required unless Vector is provided.
	Text string `json:"semantic_query"`

	// Vector optionally carries a precomputed embedding for Text.
	Vector []float32 `json:"-"`

	CharacterTypes []string `json:"character_type,omitempty"`
	Tones          []string `json:"emotional_tone,omitempty"`
	Themes         []string `json:"themes,omitempty"`

	Delivery    string `json:"context_type,omitempty"`
	Granularity string `json:"chunk_type,omitempty"`
	Formality   string `json:"formality_level,omitempty"`
	Play        string `json:"play_title,omitempty"`

	ExcludeIDs []string `json:"exclude_ids,omitempty"`

	// MaxResults defaults to DefaultMaxResults when zero.
	MaxResults int `json:"max_results,omitempty"`
}

// Relaxed returns a copy with all optional filters stripped, keeping only
// the semantic text and the exclusion set. Used as the orchestrator's
// single fallback when a filtered query comes back empty.
func (q Query) Relaxed() Query {
	return Query{
		Text:       q.Text,
		Vector:     q.Vector,
		ExcludeIDs: q.ExcludeIDs,
		MaxResults: q.MaxResults,
	}
}

// Scored pairs a fragment with its cosine similarity to the query, in
// [-1, 1].
type Scored struct {
	Fragment corpus.Fragment `json:"fragment"`
	Score    float32         `json:"score"`
}

// ScalarFilter carries the exact-match filters a store can evaluate itself.
// Tag filters stay in the retriever because list-valued metadata is stored
// denormalized.
type ScalarFilter struct {
	Delivery    string
	Granularity string
	Formality   string
	Play        string
}

// Empty reports whether no scalar filter is set.
func (f ScalarFilter) Empty() bool {
	return f == ScalarFilter{}
}

// Store is the queryable fragment index. Implementations must be safe for
// concurrent readers; Search results need no particular order beyond
// containing the topK nearest candidates.
type Store interface {
	// Insert adds fragments (with embeddings) to the index.
	Insert(ctx context.Context, fragments []corpus.Fragment) error

	// Flush ensures pending writes are persisted.
	Flush(ctx context.Context) error

	// Search returns up to topK nearest fragments by cosine similarity,
	// restricted to those matching the scalar filter.
	Search(ctx context.Context, vector []float32, topK int, filter *ScalarFilter) ([]Scored, error)

	// Get fetches a single fragment by id; returns nil when absent.
	Get(ctx context.Context, id string) (*corpus.Fragment, error)

	// Exists reports which of the given fragment ids are present.
	Exists(ctx context.Context, ids []string) (map[string]bool, error)

	// Count returns the number of indexed fragments.
	Count(ctx context.Context) (int64, error)

	// Delete removes fragments by id.
	Delete(ctx context.Context, ids []string) error

	// Close releases resources and closes connections.
	Close() error
}
