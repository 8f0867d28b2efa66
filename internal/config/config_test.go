package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./data/recall.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 10*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 1000, cfg.Query.MaxRawRows)
	assert.Equal(t, 200, cfg.Traversal.MaxNodes)
	assert.Equal(t, 32, cfg.Traversal.MaxEdgesPerNode)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Cache.HotSize)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  engine: postgres
  postgres_dsn: postgres://localhost/recall
query:
  timeout: 30s
  max_raw_rows: 50
traversal:
  max_nodes: 500
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/recall", cfg.Storage.PostgresDSN)
	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 50, cfg.Query.MaxRawRows)
	assert.Equal(t, 500, cfg.Traversal.MaxNodes)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Traversal.MaxEdges)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("query:\n  timeout: 30s\n"), 0o600))

	t.Setenv("RECALL_QUERY_TIMEOUT", "2s")
	t.Setenv("RECALL_MAX_RAW_ROWS", "25")
	t.Setenv("RECALL_EMBEDDING_MODEL", "mxbai-embed-large")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 25, cfg.Query.MaxRawRows)
	assert.Equal(t, "mxbai-embed-large", cfg.Embedding.Model)
}

func TestInvalidEnvValueFallsBack(t *testing.T) {
	t.Setenv("RECALL_MAX_RAW_ROWS", "not-a-number")
	t.Setenv("RECALL_QUERY_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Query.MaxRawRows)
	assert.Equal(t, 10*time.Second, cfg.Query.Timeout)
}

func TestPostgresEngineRequiresDSN(t *testing.T) {
	t.Setenv("RECALL_STORAGE_ENGINE", "postgres")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestUnknownEngineRejected(t *testing.T) {
	t.Setenv("RECALL_STORAGE_ENGINE", "etcd")

	_, err := Load("")
	assert.Error(t, err)
}

func TestMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
