package quote

import (
	"context"
	"fmt"

	"github.com/quillworks/cento/internal/corpus"
	"github.com/rs/zerolog/log"
)

// IndexOptions configures fragment indexing.
type IndexOptions struct {
	// BatchSize determines how many fragments to embed per API call.
	BatchSize int

	// ForceReindex deletes and re-inserts fragments even if present.
	ForceReindex bool

	// SkipExisting checks whether a fragment is already indexed and skips it.
	SkipExisting bool
}

// DefaultIndexOptions returns sensible defaults for indexing.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		BatchSize:    64,
		ForceReindex: false,
		SkipExisting: true,
	}
}

// Index embeds fragments in batches and stores them, flushing after each
// batch. Fragment ids are content hashes, so re-running an index over the
// same source is idempotent with SkipExisting set.
func Index(ctx context.Context, fragments []corpus.Fragment, embedder Embedder, store Store, opts IndexOptions) error {
	if len(fragments) == 0 {
		return nil
	}
	if embedder == nil {
		return fmt.Errorf("embedder cannot be nil")
	}
	if store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIndexOptions().BatchSize
	}

	if opts.ForceReindex {
		ids := make([]string, len(fragments))
		for i, f := range fragments {
			ids[i] = f.ID
		}
		if err := store.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete existing fragments: %w", err)
		}
	}

	toIndex := fragments
	if opts.SkipExisting && !opts.ForceReindex {
		toIndex = filterNew(ctx, fragments, store)
	}

	log.Info().
		Int("total", len(fragments)).
		Int("to_index", len(toIndex)).
		Msg("indexing fragments")

	for start := 0; start < len(toIndex); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(toIndex) {
			end = len(toIndex)
		}
		batch := toIndex[start:end]

		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Text
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch starting at %d: %w", start, err)
		}

		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		if err := store.Insert(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert batch starting at %d: %w", start, err)
		}
		if err := store.Flush(ctx); err != nil {
			return fmt.Errorf("failed to flush batch starting at %d: %w", start, err)
		}

		log.Debug().Int("start", start).Int("size", len(batch)).Msg("indexed batch")
	}

	return nil
}

// filterNew drops fragments already present in the store. On lookup failure
// it returns everything and lets insertion surface the real error.
func filterNew(ctx context.Context, fragments []corpus.Fragment, store Store) []corpus.Fragment {
	ids := make([]string, len(fragments))
	for i, f := range fragments {
		ids[i] = f.ID
	}

	existing, err := store.Exists(ctx, ids)
	if err != nil {
		return fragments
	}

	fresh := make([]corpus.Fragment, 0, len(fragments))
	for _, f := range fragments {
		if !existing[f.ID] {
			fresh = append(fresh, f)
		}
	}
	return fresh
}
