package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rcliao/recall/internal/chunker"
	"github.com/rcliao/recall/internal/ranker"
	"github.com/rcliao/recall/internal/retrieval"
)

// DefaultDir returns ~/.recall.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".recall")
}

// DefaultConfigPath returns ~/.recall/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Embedding defaults
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.Embedding.BaseURL = "http://localhost:11434"
	cfg.Embedding.Timeout = 30 * time.Second
	cfg.Embedding.Burst = 1

	// Chunker defaults
	cfg.Chunker.MaxSize = chunker.DefaultMaxSize
	cfg.Chunker.Overlap = chunker.DefaultOverlapSize
	cfg.Chunker.MinSize = chunker.DefaultMinSize

	// Retrieval defaults
	cfg.Retrieval.Enabled = true
	cfg.Retrieval.CrossChatMemory = true
	cfg.Retrieval.MaxResults = ranker.DefaultMaxResults
	cfg.Retrieval.CacheSize = retrieval.DefaultCacheSize
	cfg.Retrieval.CacheTTL = retrieval.DefaultCacheTTL
	cfg.Retrieval.EmbedConcurrency = retrieval.DefaultEmbedConcurrency

	// Store defaults
	cfg.Store.Path = filepath.Join(DefaultDir(), "recall.db")

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28

	cfg.Policies = ranker.DefaultPolicyTable()

	return cfg
}
