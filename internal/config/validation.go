package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

var (
	validProviders = map[string]bool{"": true, "ollama": true, "openai": true}
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats   = map[string]bool{"json": true, "console": true}
)

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Embedding
	if !validProviders[c.Embedding.Provider] {
		add("embedding.provider", "must be one of ollama, openai or empty, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" && !strings.Contains(c.Embedding.BaseURL, "localhost") {
		add("embedding.api_key", "api_key is required for the openai provider")
	}
	if c.Embedding.Timeout < 0 {
		add("embedding.timeout", "must not be negative, got %s", c.Embedding.Timeout)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		add("embedding.requests_per_second", "must not be negative, got %g", c.Embedding.RequestsPerSecond)
	}

	// Chunker
	if c.Chunker.MaxSize < 1 {
		add("chunker.max_size", "must be positive, got %d", c.Chunker.MaxSize)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.MaxSize {
		add("chunker.overlap", "must be in [0, max_size), got %d", c.Chunker.Overlap)
	}
	if c.Chunker.MinSize < 0 {
		add("chunker.min_size", "must not be negative, got %d", c.Chunker.MinSize)
	}

	// Retrieval
	if c.Retrieval.MaxResults < 1 {
		add("retrieval.max_results", "must be positive, got %d", c.Retrieval.MaxResults)
	}
	if c.Retrieval.CacheSize < 1 {
		add("retrieval.cache_size", "must be positive, got %d", c.Retrieval.CacheSize)
	}
	if c.Retrieval.CacheTTL <= 0 {
		add("retrieval.cache_ttl", "must be positive, got %s", c.Retrieval.CacheTTL)
	}
	if c.Retrieval.EmbedConcurrency < 1 {
		add("retrieval.embed_concurrency", "must be positive, got %d", c.Retrieval.EmbedConcurrency)
	}

	// Ranker
	for name, p := range c.Policies.ByModel {
		if p.FallbackThreshold > p.PrimaryThreshold {
			add("ranker.policies."+name, "fallback_threshold %.2f exceeds primary_threshold %.2f", p.FallbackThreshold, p.PrimaryThreshold)
		}
	}
	if d := c.Policies.Default; d.FallbackThreshold > d.PrimaryThreshold {
		add("ranker.policies.default", "fallback_threshold %.2f exceeds primary_threshold %.2f", d.FallbackThreshold, d.PrimaryThreshold)
	}

	// Store
	if c.Store.Path == "" {
		add("store.path", "path is required")
	}

	// Logging
	if !validLevels[c.Logging.Level] {
		add("logging.level", "must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	if !validFormats[c.Logging.Format] {
		add("logging.format", "must be json or console, got %q", c.Logging.Format)
	}

	return errs
}
