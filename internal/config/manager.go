package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rcliao/recall/internal/ranker"
)

// Manager loads configuration with viper and keeps Preferences current.
type Manager struct {
	configPath string
	viper      *viper.Viper
	log        *zap.Logger

	mu        sync.RWMutex
	config    *Config
	prefs     *Preferences
	watchChan chan Config
}

// NewManager creates a manager for the YAML file at configPath. The file is
// optional; an empty path uses DefaultConfigPath.
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	return &Manager{
		configPath: configPath,
		log:        zap.NewNop(),
		prefs:      NewPreferences(DefaultConfig()),
		watchChan:  make(chan Config, 1),
	}
}

// SetLogger sets the logger used for reload diagnostics.
func (m *Manager) SetLogger(log *zap.Logger) {
	if log != nil {
		m.log = log.Named("config")
	}
}

// Load loads configuration from all sources.
func (m *Manager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("RECALL")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.readFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

func (m *Manager) readFile() error {
	err := m.viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Preferences returns the live preference view. It is updated in place on
// every successful reload.
func (m *Manager) Preferences() *Preferences { return m.prefs }

// Set overrides a key, e.g. from a command-line flag, and re-derives the config.
func (m *Manager) Set(key string, value interface{}) error {
	m.viper.Set(key, value)
	return m.unmarshalConfig()
}

// Validate validates configuration is correct and complete.
func (m *Manager) Validate() error {
	errs := m.Get().Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and publishes every valid reload. Updates are
// dropped while the previous one has not been consumed. A missing file is not
// watched; the channel then never fires.
func (m *Manager) Watch(ctx context.Context) <-chan Config {
	if _, err := os.Stat(m.configPath); err != nil {
		m.log.Debug("config file not watched", zap.String("file", m.configPath), zap.Error(err))
		return m.watchChan
	}
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			m.log.Warn("config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if errs := m.Get().Validate(); len(errs) > 0 {
			m.log.Warn("reloaded config is invalid", zap.Errors("errors", errs))
		}
		m.log.Info("config reloaded", zap.String("file", e.Name))
		select {
		case m.watchChan <- *m.Get():
		default:
		}
	})
	m.viper.WatchConfig()
	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *Manager) Reload(ctx context.Context) error {
	if err := m.readFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *Manager) setDefaults() {
	defaults := DefaultConfig()

	// Embedding defaults
	m.viper.SetDefault("embedding.provider", defaults.Embedding.Provider)
	m.viper.SetDefault("embedding.model", defaults.Embedding.Model)
	m.viper.SetDefault("embedding.base_url", defaults.Embedding.BaseURL)
	m.viper.SetDefault("embedding.api_key", defaults.Embedding.APIKey)
	m.viper.SetDefault("embedding.dimensions", defaults.Embedding.Dimensions)
	m.viper.SetDefault("embedding.timeout", defaults.Embedding.Timeout)
	m.viper.SetDefault("embedding.requests_per_second", defaults.Embedding.RequestsPerSecond)
	m.viper.SetDefault("embedding.burst", defaults.Embedding.Burst)

	// Chunker defaults
	m.viper.SetDefault("chunker.max_size", defaults.Chunker.MaxSize)
	m.viper.SetDefault("chunker.overlap", defaults.Chunker.Overlap)
	m.viper.SetDefault("chunker.min_size", defaults.Chunker.MinSize)

	// Retrieval defaults
	m.viper.SetDefault("retrieval.enabled", defaults.Retrieval.Enabled)
	m.viper.SetDefault("retrieval.cross_chat_memory", defaults.Retrieval.CrossChatMemory)
	m.viper.SetDefault("retrieval.max_results", defaults.Retrieval.MaxResults)
	m.viper.SetDefault("retrieval.cache_size", defaults.Retrieval.CacheSize)
	m.viper.SetDefault("retrieval.cache_ttl", defaults.Retrieval.CacheTTL)
	m.viper.SetDefault("retrieval.embed_concurrency", defaults.Retrieval.EmbedConcurrency)

	// Store defaults
	m.viper.SetDefault("store.path", defaults.Store.Path)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
}

// unmarshalConfig unmarshals viper config into a fresh Config and publishes it.
func (m *Manager) unmarshalConfig() error {
	cfg := &Config{}

	// Embedding
	cfg.Embedding.Provider = m.viper.GetString("embedding.provider")
	cfg.Embedding.Model = m.viper.GetString("embedding.model")
	cfg.Embedding.BaseURL = m.viper.GetString("embedding.base_url")
	cfg.Embedding.APIKey = m.viper.GetString("embedding.api_key")
	cfg.Embedding.Dimensions = m.viper.GetInt("embedding.dimensions")
	cfg.Embedding.Timeout = m.viper.GetDuration("embedding.timeout")
	cfg.Embedding.RequestsPerSecond = m.viper.GetFloat64("embedding.requests_per_second")
	cfg.Embedding.Burst = m.viper.GetInt("embedding.burst")

	// Chunker
	cfg.Chunker.MaxSize = m.viper.GetInt("chunker.max_size")
	cfg.Chunker.Overlap = m.viper.GetInt("chunker.overlap")
	cfg.Chunker.MinSize = m.viper.GetInt("chunker.min_size")

	// Retrieval
	cfg.Retrieval.Enabled = m.viper.GetBool("retrieval.enabled")
	cfg.Retrieval.CrossChatMemory = m.viper.GetBool("retrieval.cross_chat_memory")
	cfg.Retrieval.MaxResults = m.viper.GetInt("retrieval.max_results")
	cfg.Retrieval.CacheSize = m.viper.GetInt("retrieval.cache_size")
	cfg.Retrieval.CacheTTL = m.viper.GetDuration("retrieval.cache_ttl")
	cfg.Retrieval.EmbedConcurrency = m.viper.GetInt("retrieval.embed_concurrency")

	// Store
	cfg.Store.Path = m.viper.GetString("store.path")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	policies, err := m.policyTable()
	if err != nil {
		return err
	}
	cfg.Policies = policies

	// Sensitive values may come from the provider's usual variable.
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	m.prefs.Update(cfg)
	return nil
}

// policyTable layers ranker.policies.<model> over the built-in table. Fields
// left out of an entry keep their built-in value; the "default" entry
// overrides the fallback policy.
func (m *Manager) policyTable() (ranker.PolicyTable, error) {
	table := ranker.DefaultPolicyTable()

	names := make([]string, 0)
	for name := range m.viper.GetStringMap("ranker.policies") {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := table.For(name)
		if name == "default" {
			p = table.Default
		}
		if err := m.viper.UnmarshalKey("ranker.policies."+name, &p); err != nil {
			return table, fmt.Errorf("ranker.policies.%s: %w", name, err)
		}
		if name == "default" {
			table.Default = p
		} else {
			table = table.With(name, p)
		}
	}
	return table, nil
}
