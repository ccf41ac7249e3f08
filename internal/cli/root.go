// Package cli implements the recall CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/logging"
	"github.com/rcliao/recall/internal/retrieval"
	"github.com/rcliao/recall/internal/store"
)

var (
	dbPath     string
	configPath string
	formatFlag string
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Contextual retrieval over conversations and global memory",
	Long: "Chunk and embed documents, keep a persistent global memory, and retrieve the " +
		"passages most relevant to a query. Embeddings come from Ollama or an OpenAI-compatible API.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: store.path from config, ~/.recall/recall.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.recall/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json, yaml or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging, including ranker decisions")
}

// app bundles what a command needs: configuration, logger, store and engine.
type app struct {
	cfg    *config.Config
	mgr    *config.Manager
	log    *zap.Logger
	store  *store.SQLiteStore
	engine *retrieval.Engine
}

func loadConfig(ctx context.Context) (*config.Manager, error) {
	mgr := config.NewManager(configPath)
	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}
	if dbPath != "" {
		if err := mgr.Set("store.path", dbPath); err != nil {
			return nil, err
		}
	}
	if verbose {
		if err := mgr.Set("logging.level", "debug"); err != nil {
			return nil, err
		}
	}
	if err := mgr.Validate(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func getDBPath(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.Store.Path
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	path := getDBPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.NewSQLiteStore(path)
}

// openApp loads configuration and wires the engine to the store. The engine
// is not initialized; commands that search or embed call ready.
func openApp(ctx context.Context) (*app, error) {
	mgr, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	mgr.SetLogger(log)

	s, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder, err := embedding.New(cfg.EmbedderConfig())
	if err != nil {
		s.Close()
		return nil, err
	}

	engine, err := retrieval.New(retrieval.Options{
		Embedder:         embedder,
		Preferences:      mgr.Preferences(),
		Policies:         cfg.Policies,
		Chunking:         cfg.ChunkOptions(),
		Persistence:      s,
		Logger:           log,
		CacheSize:        cfg.Retrieval.CacheSize,
		CacheTTL:         cfg.Retrieval.CacheTTL,
		EmbedConcurrency: cfg.Retrieval.EmbedConcurrency,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	return &app{cfg: cfg, mgr: mgr, log: log, store: s, engine: engine}, nil
}

// ready initializes the engine, restoring global memory from the store.
func (a *app) ready(ctx context.Context) error {
	if err := a.engine.Initialize(ctx); err != nil {
		return fmt.Errorf("retrieval unavailable: %w", err)
	}
	return nil
}

func (a *app) Close() {
	a.store.Close()
	_ = a.log.Sync()
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
