// Package config provides configuration management for Recall. Settings
// come from an optional YAML file overridden by environment variables
// with the RECALL_ prefix, with sensible defaults for everything.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the Recall query engine.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Query     QueryConfig     `yaml:"query"`
	Traversal TraversalConfig `yaml:"traversal"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
}

// StorageConfig selects and configures the backend.
type StorageConfig struct {
	// Engine is "postgres" or "sqlite" (default: sqlite).
	Engine string `yaml:"engine"`

	// PostgresDSN is the connection string for the postgres engine.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SQLitePath is the database file for the sqlite engine
	// (default: ./data/recall.db).
	SQLitePath string `yaml:"sqlite_path"`
}

// QueryConfig tunes the dispatcher.
type QueryConfig struct {
	// Timeout bounds one query end to end (default: 10s).
	Timeout time.Duration `yaml:"timeout"`

	// MaxRawRows caps SQL passthrough read results (default: 1000).
	MaxRawRows int `yaml:"max_raw_rows"`
}

// TraversalConfig bounds graph expansion.
type TraversalConfig struct {
	MaxNodes        int           `yaml:"max_nodes"`
	MaxEdges        int           `yaml:"max_edges"`
	MaxEdgesPerNode int           `yaml:"max_edges_per_node"`
	Timeout         time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures the vector provider for SEARCH.
type EmbeddingConfig struct {
	// OllamaURL is the provider endpoint (default: http://localhost:11434).
	OllamaURL string `yaml:"ollama_url"`

	// Model is the embedding model (default: nomic-embed-text).
	Model string `yaml:"model"`

	// Timeout bounds one embed call (default: 5s).
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond throttles embed calls (default: 10).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// CacheConfig tunes the label-index maintenance path.
type CacheConfig struct {
	// HotSize is the in-process LRU capacity (default: 1024).
	HotSize int `yaml:"hot_size"`

	// QueueSize bounds the async rebuild queue (default: 256).
	QueueSize int `yaml:"queue_size"`
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then RECALL_ environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Storage.Engine != "postgres" && cfg.Storage.Engine != "sqlite" {
		return nil, fmt.Errorf("config: unknown storage engine %q", cfg.Storage.Engine)
	}
	if cfg.Storage.Engine == "postgres" && cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("config: postgres engine requires a DSN")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:     "sqlite",
			SQLitePath: "./data/recall.db",
		},
		Query: QueryConfig{
			Timeout:    10 * time.Second,
			MaxRawRows: 1000,
		},
		Traversal: TraversalConfig{
			MaxNodes:        200,
			MaxEdges:        1000,
			MaxEdgesPerNode: 32,
			Timeout:         10 * time.Second,
		},
		Embedding: EmbeddingConfig{
			OllamaURL:         "http://localhost:11434",
			Model:             "nomic-embed-text",
			Timeout:           5 * time.Second,
			RequestsPerSecond: 10,
		},
		Cache: CacheConfig{
			HotSize:   1024,
			QueueSize: 256,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("RECALL_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.PostgresDSN = getEnv("RECALL_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.SQLitePath = getEnv("RECALL_SQLITE_PATH", cfg.Storage.SQLitePath)

	cfg.Query.Timeout = getEnvDuration("RECALL_QUERY_TIMEOUT", cfg.Query.Timeout)
	cfg.Query.MaxRawRows = getEnvInt("RECALL_MAX_RAW_ROWS", cfg.Query.MaxRawRows)

	cfg.Traversal.MaxNodes = getEnvInt("RECALL_TRAVERSE_MAX_NODES", cfg.Traversal.MaxNodes)
	cfg.Traversal.MaxEdges = getEnvInt("RECALL_TRAVERSE_MAX_EDGES", cfg.Traversal.MaxEdges)
	cfg.Traversal.MaxEdgesPerNode = getEnvInt("RECALL_TRAVERSE_MAX_EDGES_PER_NODE", cfg.Traversal.MaxEdgesPerNode)
	cfg.Traversal.Timeout = getEnvDuration("RECALL_TRAVERSE_TIMEOUT", cfg.Traversal.Timeout)

	cfg.Embedding.OllamaURL = getEnv("RECALL_OLLAMA_URL", cfg.Embedding.OllamaURL)
	cfg.Embedding.Model = getEnv("RECALL_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Timeout = getEnvDuration("RECALL_EMBEDDING_TIMEOUT", cfg.Embedding.Timeout)

	cfg.Cache.HotSize = getEnvInt("RECALL_CACHE_HOT_SIZE", cfg.Cache.HotSize)
	cfg.Cache.QueueSize = getEnvInt("RECALL_CACHE_QUEUE_SIZE", cfg.Cache.QueueSize)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
