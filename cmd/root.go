package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quillworks/cento/internal/config"
	"github.com/quillworks/cento/internal/quote"
)

var rootCmd = &cobra.Command{
	Use:   "cento",
	Short: "Cento - dramatic scenes assembled from Shakespeare fragments",
	Long: `Cento builds short dramatic scenes entirely out of pre-existing,
annotated Shakespeare fragments.

It chunks play texts into fragments at several granularities, annotates and
embeds them into a searchable index, then orchestrates speech-by-speech
retrieval so that every line in the output is a verbatim quote and no quote
appears twice in a scene.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads environment configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return cfg, nil
}

// openStore opens the configured fragment store backend.
func openStore(ctx context.Context, cfg *config.Config) (quote.Store, error) {
	switch cfg.Store {
	case config.StoreMilvus:
		milvusCfg := quote.DefaultMilvusConfig()
		milvusCfg.Address = cfg.MilvusAddress
		milvusCfg.CollectionName = cfg.MilvusCollection
		milvusCfg.Dimension = cfg.EmbeddingDimension
		return quote.NewMilvusStore(ctx, milvusCfg)
	default:
		return quote.NewSQLiteStore(cfg.SQLitePath)
	}
}
