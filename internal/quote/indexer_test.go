package quote

import (
	"context"
	"errors"
	"testing"

	"github.com/quillworks/cento/internal/corpus"
)

func testFragments(n int) []corpus.Fragment {
	fragments := make([]corpus.Fragment, n)
	for i := range fragments {
		fragments[i] = corpus.Fragment{
			ID:   string(rune('a' + i)),
			Text: "fragment text",
		}
	}
	return fragments
}

func TestIndexEmptyInput(t *testing.T) {
	if err := Index(context.Background(), nil, &mockEmbedder{}, &mockStore{}, DefaultIndexOptions()); err != nil {
		t.Errorf("expected nil error for empty input, got %v", err)
	}
}

func TestIndexNilDependencies(t *testing.T) {
	fragments := testFragments(1)
	if err := Index(context.Background(), fragments, nil, &mockStore{}, DefaultIndexOptions()); err == nil {
		t.Error("expected error for nil embedder")
	}
	if err := Index(context.Background(), fragments, &mockEmbedder{}, nil, DefaultIndexOptions()); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestIndexBatchesAndFlushes(t *testing.T) {
	store := &mockStore{
		existsFunc: func(ctx context.Context, ids []string) (map[string]bool, error) {
			return map[string]bool{}, nil
		},
	}
	opts := IndexOptions{BatchSize: 2, SkipExisting: true}

	if err := Index(context.Background(), testFragments(5), &mockEmbedder{}, store, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.inserted) != 5 {
		t.Errorf("expected 5 inserted fragments, got %d", len(store.inserted))
	}
	if store.flushes != 3 {
		t.Errorf("expected 3 flushes for batch size 2, got %d", store.flushes)
	}
	for _, f := range store.inserted {
		if len(f.Embedding) == 0 {
			t.Errorf("fragment %s inserted without embedding", f.ID)
		}
	}
}

func TestIndexSkipsExisting(t *testing.T) {
	store := &mockStore{
		existsFunc: func(ctx context.Context, ids []string) (map[string]bool, error) {
			return map[string]bool{"a": true, "c": true}, nil
		},
	}

	if err := Index(context.Background(), testFragments(3), &mockEmbedder{}, store, DefaultIndexOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].ID != "b" {
		t.Errorf("expected only fragment b to be inserted, got %+v", store.inserted)
	}
}

func TestIndexForceReindexDeletesFirst(t *testing.T) {
	var deleted []string
	store := &mockStore{
		deleteFunc: func(ctx context.Context, ids []string) error {
			deleted = ids
			return nil
		},
	}
	opts := IndexOptions{BatchSize: 10, ForceReindex: true}

	if err := Index(context.Background(), testFragments(3), &mockEmbedder{}, store, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deleted) != 3 {
		t.Errorf("expected 3 deletions before reindex, got %d", len(deleted))
	}
	if len(store.inserted) != 3 {
		t.Errorf("expected 3 inserted fragments, got %d", len(store.inserted))
	}
}

func TestIndexEmbedFailureAborts(t *testing.T) {
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("rate limited")
		},
	}
	store := &mockStore{}

	err := Index(context.Background(), testFragments(2), embedder, store, IndexOptions{BatchSize: 10})
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}
	if len(store.inserted) != 0 {
		t.Errorf("expected nothing inserted after embed failure, got %d", len(store.inserted))
	}
}
