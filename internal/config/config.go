// Package config loads recall configuration from a YAML file, RECALL_*
// environment variables and defaults.
package config

import (
	"time"

	"github.com/rcliao/recall/internal/chunker"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/ranker"
)

// Config is the full configuration.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Policies is built from ranker.policies; entries override the built-in table.
	Policies ranker.PolicyTable `yaml:"-"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // ollama | openai | "" (disabled)
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Dimensions        int           `yaml:"dimensions"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// ChunkerConfig sizes document chunks.
type ChunkerConfig struct {
	MaxSize int `yaml:"max_size"`
	Overlap int `yaml:"overlap"`
	MinSize int `yaml:"min_size"`
}

// RetrievalConfig tunes the retrieval engine.
type RetrievalConfig struct {
	Enabled          bool          `yaml:"enabled"`
	CrossChatMemory  bool          `yaml:"cross_chat_memory"`
	MaxResults       int           `yaml:"max_results"`
	CacheSize        int           `yaml:"cache_size"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	EmbedConcurrency int           `yaml:"embed_concurrency"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the zap logger and its optional rotating file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json | console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// EmbedderConfig converts the embedding section for embedding.New.
func (c *Config) EmbedderConfig() embedding.Config {
	return embedding.Config{
		Provider:          c.Embedding.Provider,
		Model:             c.Embedding.Model,
		BaseURL:           c.Embedding.BaseURL,
		APIKey:            c.Embedding.APIKey,
		Dimensions:        c.Embedding.Dimensions,
		Timeout:           c.Embedding.Timeout,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
		Burst:             c.Embedding.Burst,
	}
}

// ChunkOptions converts the chunker section.
func (c *Config) ChunkOptions() chunker.Options {
	return chunker.Options{
		MaxSize:     c.Chunker.MaxSize,
		OverlapSize: c.Chunker.Overlap,
		MinSize:     c.Chunker.MinSize,
	}
}
