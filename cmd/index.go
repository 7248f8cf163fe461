package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/quillworks/cento/internal/corpus"
	"github.com/quillworks/cento/internal/ingest"
	"github.com/quillworks/cento/internal/quote"
)

var (
	indexReindex       bool
	indexTitle         string
	indexGranularities []string
)

var indexCmd = &cobra.Command{
	Use:   "index [source]",
	Short: "Build the fragment index from play texts",
	Long: `Build the searchable fragment index from raw play texts.

The source may be a single .txt file, a directory of .txt files, or a git
URL whose repository contains .txt files. Each play is chunked at the
requested granularities, annotated with structural and stylistic metadata,
embedded, and stored.

Required environment variables:
  OPENAI_API_KEY   - OpenAI API key for embeddings

Examples:
  cento index ./plays/
  cento index hamlet.txt --granularity full_line,phrase
  cento index https://github.com/user/shakespeare-texts --reindex`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexReindex, "reindex", false, "Re-embed and overwrite fragments already indexed")
	indexCmd.Flags().StringVar(&indexTitle, "title", "", "Play title override (single-file sources only)")
	indexCmd.Flags().StringSliceVar(&indexGranularities, "granularity", []string{"full_line", "phrase"},
		"Fragment granularities to build: full_line, phrase, fragment")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	contextStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)

	granularities := make([]corpus.Granularity, len(indexGranularities))
	for i, g := range indexGranularities {
		granularities[i] = corpus.Granularity(g)
	}

	fmt.Println(contextStyle.Render("→ Loading play texts..."))
	sources, err := ingest.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no play texts found at %s", args[0])
	}
	if indexTitle != "" {
		if len(sources) != 1 {
			return fmt.Errorf("--title applies to a single source, found %d", len(sources))
		}
		sources[0].Name = indexTitle
	}

	chunker := corpus.Chunker{Granularities: granularities}
	var fragments []corpus.Fragment
	for _, src := range sources {
		chunks := chunker.ChunkPlay(src.Text, src.Name)
		fragments = append(fragments, chunks...)
		fmt.Println(contextStyle.Render(fmt.Sprintf("  %s: %d fragments", src.Name, len(chunks))))
	}

	embedder, err := quote.NewOpenAIEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimension)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := quote.DefaultIndexOptions()
	opts.ForceReindex = indexReindex
	if err := quote.Index(ctx, fragments, embedder, store, opts); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Index ready: %d fragments", count)))
	return nil
}
