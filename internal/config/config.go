// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backend names.
const (
	StoreSQLite = "sqlite"
	StoreMilvus = "milvus"
)

// Config holds all runtime settings.
type Config struct {
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	EmbeddingModel     string `env:"CENTO_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimension int    `env:"CENTO_EMBEDDING_DIM" envDefault:"1536"`
	ChatModel          string `env:"CENTO_CHAT_MODEL" envDefault:"gpt-4o"`

	// Store selects the fragment index backend: sqlite or milvus.
	Store      string `env:"CENTO_STORE" envDefault:"sqlite"`
	SQLitePath string `env:"CENTO_SQLITE_PATH" envDefault:"cento.db"`

	MilvusAddress    string `env:"MILVUS_ADDRESS" envDefault:"localhost:19530"`
	MilvusCollection string `env:"MILVUS_COLLECTION" envDefault:"cento_fragments"`

	Debug bool `env:"CENTO_DEBUG" envDefault:"false"`
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Store != StoreSQLite && cfg.Store != StoreMilvus {
		return nil, fmt.Errorf("unknown store backend %q (want %s or %s)", cfg.Store, StoreSQLite, StoreMilvus)
	}
	if cfg.EmbeddingDimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.EmbeddingDimension)
	}
	return &cfg, nil
}
