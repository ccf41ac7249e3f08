package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Embedding defaults
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)

	// Chunker defaults
	assert.Equal(t, 800, cfg.Chunker.MaxSize)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, 40, cfg.Chunker.MinSize)

	// Retrieval defaults
	assert.True(t, cfg.Retrieval.Enabled)
	assert.True(t, cfg.Retrieval.CrossChatMemory)
	assert.Equal(t, 5, cfg.Retrieval.MaxResults)
	assert.Equal(t, 256, cfg.Retrieval.CacheSize)
	assert.Equal(t, 5*time.Second, cfg.Retrieval.CacheTTL)

	// Ranker defaults
	assert.Equal(t, 0.60, cfg.Policies.Default.PrimaryThreshold)
	assert.Equal(t, 0.35, cfg.Policies.Default.FallbackThreshold)

	assert.Empty(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		modifyFn func(*Config)
		field    string
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai"; c.Embedding.BaseURL = "" }, "embedding.api_key"},
		{"overlap too large", func(c *Config) { c.Chunker.Overlap = 800 }, "chunker.overlap"},
		{"zero max results", func(c *Config) { c.Retrieval.MaxResults = 0 }, "retrieval.max_results"},
		{"zero cache ttl", func(c *Config) { c.Retrieval.CacheTTL = 0 }, "retrieval.cache_ttl"},
		{"inverted thresholds", func(c *Config) { c.Policies.Default.FallbackThreshold = 0.9 }, "ranker.policies.default"},
		{"missing store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1)
			var ve *ValidationError
			require.ErrorAs(t, errs[0], &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestManager_LoadMissingFileUsesDefaults(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, m.Load(context.Background()))
	require.NoError(t, m.Validate())

	cfg := m.Get()
	assert.Equal(t, DefaultConfig().Retrieval, cfg.Retrieval)
	assert.Equal(t, "nomic-embed-text", m.Preferences().EmbeddingModel())
}

func TestManager_LoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
embedding:
  provider: openai
  model: text-embedding-3-small
  api_key: sk-test
  timeout: 10s
retrieval:
  cross_chat_memory: false
  cache_ttl: 2s
ranker:
  policies:
    text-embedding-3-small:
      primary_threshold: 0.7
    default:
      lexical_threshold: 0.2
store:
  path: /tmp/recall-test.db
`)
	m := NewManager(path)
	require.NoError(t, m.Load(context.Background()))
	require.NoError(t, m.Validate())

	cfg := m.Get()
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 10*time.Second, cfg.Embedding.Timeout)
	assert.False(t, cfg.Retrieval.CrossChatMemory)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.CacheTTL)
	assert.Equal(t, 800, cfg.Chunker.MaxSize, "unset keys keep defaults")

	custom := cfg.Policies.For("text-embedding-3-small")
	assert.Equal(t, 0.7, custom.PrimaryThreshold)
	assert.Equal(t, 0.35, custom.FallbackThreshold, "fields left out keep the built-in value")
	assert.Equal(t, 0.2, cfg.Policies.Default.LexicalThreshold)
	assert.Equal(t, 0.50, cfg.Policies.For("all-minilm").PrimaryThreshold)

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "sk-test", ec.APIKey)
	assert.Equal(t, 800, cfg.ChunkOptions().MaxSize)

	prefs := m.Preferences()
	assert.False(t, prefs.CrossChatMemory())
	assert.Equal(t, "text-embedding-3-small", prefs.EmbeddingModel())
}

func TestManager_EnvOverrides(t *testing.T) {
	t.Setenv("RECALL_RETRIEVAL_CROSS_CHAT_MEMORY", "false")
	t.Setenv("RECALL_EMBEDDING_MODEL", "all-minilm")
	t.Setenv("RECALL_CHUNKER_MAX_SIZE", "400")

	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, m.Load(context.Background()))

	cfg := m.Get()
	assert.False(t, cfg.Retrieval.CrossChatMemory)
	assert.Equal(t, "all-minilm", cfg.Embedding.Model)
	assert.Equal(t, 400, cfg.Chunker.MaxSize)
}

func TestManager_Set(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, m.Load(context.Background()))

	require.NoError(t, m.Set("retrieval.cross_chat_memory", false))
	assert.False(t, m.Get().Retrieval.CrossChatMemory)
	assert.False(t, m.Preferences().CrossChatMemory())
}

func TestManager_InvalidFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "retrieval: [unclosed")
	m := NewManager(path)
	assert.Error(t, m.Load(context.Background()))
}

func TestManager_WatchUpdatesPreferences(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "retrieval:\n  cross_chat_memory: true\n")

	m := NewManager(path)
	require.NoError(t, m.Load(context.Background()))
	prefs := m.Preferences()
	require.True(t, prefs.CrossChatMemory())

	updates := m.Watch(context.Background())
	writeConfig(t, dir, "retrieval:\n  cross_chat_memory: false\n")

	select {
	case cfg := <-updates:
		assert.False(t, cfg.Retrieval.CrossChatMemory)
	case <-time.After(5 * time.Second):
		t.Fatal("no config update received")
	}
	assert.False(t, prefs.CrossChatMemory(), "preferences handed out earlier see the reload")
}

func TestManager_WatchMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, m.Load(context.Background()))

	updates := m.Watch(context.Background())
	select {
	case <-updates:
		t.Fatal("unexpected update for a missing file")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "retrieval:\n  max_results: 3\n")

	m := NewManager(path)
	require.NoError(t, m.Load(context.Background()))
	require.Equal(t, 3, m.Get().Retrieval.MaxResults)

	writeConfig(t, dir, "retrieval:\n  max_results: 7\n  cross_chat_memory: false\n")
	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, 7, m.Get().Retrieval.MaxResults)
	assert.False(t, m.Preferences().CrossChatMemory())
}

func TestPreferences(t *testing.T) {
	p := NewPreferences(DefaultConfig())
	assert.True(t, p.RetrievalEnabled())
	assert.True(t, p.CrossChatMemory())

	p.SetCrossChatMemory(false)
	assert.False(t, p.CrossChatMemory())
	assert.Equal(t, "nomic-embed-text", p.EmbeddingModel())
}
