package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/quillworks/cento/internal/quote"
)

var (
	queryTones       []string
	queryThemes      []string
	queryCharTypes   []string
	queryDelivery    string
	queryGranularity string
	queryFormality   string
	queryPlay        string
	queryMax         int
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search the fragment index directly",
	Long: `Run a single retrieval query against the fragment index and print
the ranked results. Useful for inspecting what the corpus can serve before
generating a scene.

Examples:
  cento query "ambition devouring itself"
  cento query "grief for a dead father" --tone melancholic --type soliloquy
  cento query "a storm as the world's anger" --theme nature,madness --max-results 10`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringSliceVar(&queryTones, "tone", nil, "Acceptable emotional tones")
	queryCmd.Flags().StringSliceVar(&queryThemes, "theme", nil, "Acceptable themes")
	queryCmd.Flags().StringSliceVar(&queryCharTypes, "character-type", nil, "Acceptable speaker classes")
	queryCmd.Flags().StringVar(&queryDelivery, "type", "", "Dramatic context: soliloquy, dialogue, aside, monologue")
	queryCmd.Flags().StringVar(&queryGranularity, "granularity", "", "Fragment size: full_line, phrase, fragment")
	queryCmd.Flags().StringVar(&queryFormality, "formality", "", "Formality level: high, medium, low")
	queryCmd.Flags().StringVar(&queryPlay, "play", "", "Restrict to one play")
	queryCmd.Flags().IntVar(&queryMax, "max-results", quote.DefaultMaxResults, "Maximum results")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := quote.NewOpenAIEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimension)
	if err != nil {
		return err
	}
	retriever, err := quote.NewRetriever(embedder, store)
	if err != nil {
		return err
	}

	results, err := retriever.Retrieve(ctx, quote.Query{
		Text:           args[0],
		Tones:          queryTones,
		Themes:         queryThemes,
		CharacterTypes: queryCharTypes,
		Delivery:       queryDelivery,
		Granularity:    queryGranularity,
		Formality:      queryFormality,
		Play:           queryPlay,
		MaxResults:     queryMax,
	})
	if err != nil {
		return err
	}

	textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E9E9F4"))
	metaStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)

	if len(results) == 0 {
		fmt.Println(metaStyle.Render("No fragments matched."))
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s\n", i+1, textStyle.Render(r.Fragment.Text))
		fmt.Println(metaStyle.Render(fmt.Sprintf("   %s — %s %d.%d | %s | score %.3f",
			r.Fragment.Character, r.Fragment.Play, r.Fragment.Act, r.Fragment.Scene,
			r.Fragment.Delivery, r.Score)))
	}
	return nil
}
