package cmd

import (
	"fmt"
	"log"
	"os"

	"salesbot/internal/config"
	"salesbot/internal/db"
	"salesbot/internal/embeddings"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if verbose {
		log.Printf("config loaded from %s (db=%s, port=%d)", cfgFile, cfg.DatabasePath, cfg.Port)
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*db.DB, error) {
	return db.Open(cfg.DatabasePath)
}

func newEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	key := os.Getenv(config.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%s is not set", config.APIKeyEnv)
	}
	return embeddings.NewOpenAIEmbedder(key, embeddings.OpenAIModel(cfg.EmbeddingModel)), nil
}
