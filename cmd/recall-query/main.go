// Command recall-query runs queries against a Recall store. With -q it
// executes one query and exits; without it, it reads queries line by
// line from stdin. Results are printed as JSON, one object per query.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/embedding"
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/cache"
	"github.com/scrypster/recall/internal/storage/postgres"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/pkg/types"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		tenantID   = flag.String("tenant", "", "tenant scope (required)")
		ownerID    = flag.String("owner", "", "owner scope (required)")
		queryText  = flag.String("q", "", "query to execute; omit for REPL mode")
		rebuild    = flag.Bool("rebuild-cache", false, "rebuild the label index and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("recall-query: %v", err)
	}

	inner, err := openStore(cfg)
	if err != nil {
		log.Fatalf("recall-query: %v", err)
	}

	// Front the store with the hot-label LRU and the index maintenance
	// queue; Close drains the queue before releasing the connection.
	store, err := cache.WrapBackend(inner, cfg.Cache.HotSize, cfg.Cache.QueueSize)
	if err != nil {
		inner.Close()
		log.Fatalf("recall-query: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("recall-query: close store: %v", err)
		}
	}()

	ctx := context.Background()

	if *rebuild {
		if err := store.RebuildCache(ctx); err != nil {
			log.Fatalf("recall-query: rebuild cache: %v", err)
		}
		fmt.Println("label index rebuilt")
		return
	}

	scope := types.Scope{TenantID: *tenantID, OwnerID: *ownerID}
	if err := scope.Validate(); err != nil {
		log.Fatalf("recall-query: -tenant and -owner are required: %v", err)
	}

	embedder := embedding.NewOllamaClient(embedding.OllamaConfig{
		BaseURL:           cfg.Embedding.OllamaURL,
		Model:             cfg.Embedding.Model,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})

	eng := engine.New(store, embedder, engine.Config{
		QueryTimeout: cfg.Query.Timeout,
		MaxRawRows:   cfg.Query.MaxRawRows,
		Bounds: storage.TraverseBounds{
			MaxNodes:        cfg.Traversal.MaxNodes,
			MaxEdges:        cfg.Traversal.MaxEdges,
			MaxEdgesPerNode: cfg.Traversal.MaxEdgesPerNode,
			Timeout:         cfg.Traversal.Timeout,
		},
	})

	if *queryText != "" {
		if err := runOne(ctx, eng, *queryText, scope); err != nil {
			log.Fatalf("recall-query: %v", err)
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		if err := runOne(ctx, eng, line, scope); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("recall-query: read stdin: %v", err)
	}
}

func runOne(ctx context.Context, eng *engine.Engine, q string, scope types.Scope) error {
	result, err := eng.Execute(ctx, q, scope)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func openStore(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	case "sqlite":
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return sqlite.New(cfg.Storage.SQLitePath)
	}
	return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
}
