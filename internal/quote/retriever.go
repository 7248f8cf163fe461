package quote

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Retriever is the retrieval engine: it embeds the query text, candidate-
// generates via the store's nearest-neighbor search, then applies tag
// filters and exclusions before deterministic ranking.
//
// Retrieve is a pure read. It never mutates the store or any session state,
// so an identical query with an identical exclusion set always returns the
// same ordered result.
type Retriever struct {
	embedder Embedder
	store    Store
}

// NewRetriever creates a Retriever over the given embedder and store.
func NewRetriever(embedder Embedder, store Store) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &Retriever{embedder: embedder, store: store}, nil
}

// Retrieve executes one retrieval query.
//
// An empty result is a valid outcome, not an error: aggressive filtering may
// legitimately match nothing and callers must handle that. The only hard
// failure is ErrIndexUnavailable from the underlying store.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]Scored, error) {
	if err := validate(q); err != nil {
		return nil, err
	}

	maxResults := q.MaxResults
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}

	vector := q.Vector
	if vector == nil {
		vectors, err := r.embedder.Embed(ctx, []string{q.Text})
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		vector = vectors[0]
	}

	// Over-fetch so that tag filters and exclusions still leave enough
	// candidates to fill maxResults.
	topK := maxResults*overfetchFactor + len(q.ExcludeIDs)

	filter := scalarFilter(q)
	candidates, err := r.store.Search(ctx, vector, topK, filter)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}

	results := make([]Scored, 0, maxResults)
	for _, c := range candidates {
		if excluded[c.Fragment.ID] {
			continue
		}
		if !anyOf(q.CharacterTypes, []string{c.Fragment.CharacterType}) {
			continue
		}
		if !anyOf(q.Tones, c.Fragment.Tones) {
			continue
		}
		if !anyOf(q.Themes, c.Fragment.Themes) {
			continue
		}
		results = append(results, c)
	}

	sortResults(results)
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	log.Debug().
		Str("query", q.Text).
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Int("excluded", len(q.ExcludeIDs)).
		Msg("retrieval complete")

	return results, nil
}

func validate(q Query) error {
	if q.Text == "" {
		return fmt.Errorf("%w: semantic query text is empty", ErrInvalidQuery)
	}
	if q.MaxResults < 0 {
		return fmt.Errorf("%w: max results must be at least 1, got %d", ErrInvalidQuery, q.MaxResults)
	}
	return nil
}

func scalarFilter(q Query) *ScalarFilter {
	f := ScalarFilter{
		Delivery:    q.Delivery,
		Granularity: q.Granularity,
		Formality:   q.Formality,
		Play:        q.Play,
	}
	if f.Empty() {
		return nil
	}
	return &f
}

// anyOf implements tag-filter semantics: an unset filter matches anything,
// otherwise the fragment's tag set must intersect the requested set.
func anyOf(wanted, have []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// sortResults orders by score descending, breaking ties by lower word count
// then lexical id so identical queries always rank identically.
func sortResults(results []Scored) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Fragment.WordCount != results[j].Fragment.WordCount {
			return results[i].Fragment.WordCount < results[j].Fragment.WordCount
		}
		return results[i].Fragment.ID < results[j].Fragment.ID
	})
}
