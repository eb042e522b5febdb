package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolkit-rag/engine/internal/cache"
	"github.com/toolkit-rag/engine/internal/config"
	"github.com/toolkit-rag/engine/internal/observability"
	"github.com/toolkit-rag/engine/internal/rag/chunker"
	"github.com/toolkit-rag/engine/internal/rag/embeddings"
	"github.com/toolkit-rag/engine/internal/rag/embeddings/ollama"
	"github.com/toolkit-rag/engine/internal/rag/embeddings/openai"
	"github.com/toolkit-rag/engine/internal/rag/embeddings/tei"
	"github.com/toolkit-rag/engine/internal/rag/engine"
	"github.com/toolkit-rag/engine/internal/rag/ingest"
	"github.com/toolkit-rag/engine/internal/rag/store"
	"github.com/toolkit-rag/engine/internal/rag/store/memory"
	"github.com/toolkit-rag/engine/internal/rag/store/pgvector"
	"github.com/toolkit-rag/engine/internal/rag/store/qdrant"
	"github.com/toolkit-rag/engine/internal/rag/store/sqlite"
	"github.com/toolkit-rag/engine/internal/ratelimit"
	"github.com/toolkit-rag/engine/internal/retry"
	"github.com/toolkit-rag/engine/pkg/models"
)

// clientKey identifies CLI traffic to the rate limiter.
const clientKey = "cli"

// stack holds the wired pipeline for one command invocation.
type stack struct {
	cfg          *config.Config
	engine       *engine.Engine
	orchestrator *ingest.Orchestrator
	store        store.VectorStore
	shutdown     func(context.Context) error
}

func (s *stack) close(ctx context.Context) {
	if s.shutdown != nil {
		_ = s.shutdown(ctx)
	}
	_ = s.store.Close()
}

// buildStack loads configuration and wires provider, store, cache,
// limiter, and instrumentation into the engine and orchestrator.
func buildStack(configPath string) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	vs, err := buildStore(cfg, provider.Dimension())
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "ragctl",
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		resultCache = cache.New(cache.Options{
			TTL:     cfg.Cache.TTL,
			MaxSize: cfg.Cache.MaxSize,
		})
	}

	var limiter *ratelimit.Registry
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewRegistry(map[string]ratelimit.Config{
			ingest.RateClassIngest: {
				Limit:   cfg.RateLimit.Ingest.Limit,
				Window:  cfg.RateLimit.Ingest.Window,
				Enabled: true,
			},
			engine.RateClassQuery: {
				Limit:   cfg.RateLimit.Query.Limit,
				Window:  cfg.RateLimit.Query.Window,
				Enabled: true,
			},
		})
	}

	splitter, err := chunker.NewWindowSplitter(chunker.Config{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	retryCfg := retry.DefaultConfig()
	if cfg.Ingest.RetryAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Ingest.RetryAttempts
	}

	eng := engine.New(provider, vs, engine.Options{
		HybridAlpha:  cfg.Query.HybridAlpha,
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
		Cache:        resultCache,
		Limiter:      limiter,
		Logger:       logger,
		Tracer:       tracer,
	})
	orch := ingest.New(provider, vs, splitter, ingest.Options{
		Concurrency: cfg.Ingest.Concurrency,
		Timeout:     cfg.Ingest.Timeout,
		Retry:       retryCfg,
		Cache:       resultCache,
		Limiter:     limiter,
		Logger:      logger,
		Tracer:      tracer,
	})

	return &stack{
		cfg:          cfg,
		engine:       eng,
		orchestrator: orch,
		store:        vs,
		shutdown:     shutdown,
	}, nil
}

func buildProvider(cfg *config.Config) (embeddings.Provider, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			Timeout:   cfg.Embedding.RequestTimeout,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:    cfg.Embedding.APIKey,
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		})
	case "tei":
		return tei.New(tei.Config{
			BaseURL:   cfg.Embedding.BaseURL,
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			Timeout:   cfg.Embedding.RequestTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildStore(cfg *config.Config, dimension int) (store.VectorStore, error) {
	switch cfg.Store.Backend {
	case "pgvector":
		return pgvector.New(pgvector.Config{
			DSN:           cfg.Store.DSN,
			Dimension:     dimension,
			RunMigrations: cfg.Store.RunMigrations,
		})
	case "qdrant":
		return qdrant.New(qdrant.Config{
			URL:       cfg.Store.URL,
			APIKey:    cfg.Store.APIKey,
			Dimension: dimension,
		})
	case "sqlite":
		return sqlite.New(sqlite.Config{
			Path:      cfg.Store.Path,
			Dimension: dimension,
		})
	case "memory":
		return memory.New(dimension), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runIngest(cmd *cobra.Command, configPath, project, fileID, path, name, fileType, language string, meta []string) error {
	metadata, err := parseMetadata(meta)
	if err != nil {
		return err
	}

	content, err := readInput(path)
	if err != nil {
		return err
	}
	if name == "" && path != "-" {
		name = filepath.Base(path)
	}

	s, err := buildStack(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer s.close(ctx)

	result, err := s.orchestrator.Ingest(ctx, clientKey, &ingest.Request{
		ProjectID: project,
		FileID:    fileID,
		Name:      name,
		Content:   content,
		FileType:  fileType,
		Language:  language,
		Metadata:  metadata,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s/%s: %d chunks (model %s, %dms)\n",
		result.ProjectID, result.FileID, result.ChunkCount, result.EmbeddingModel, result.DurationMs)
	return nil
}

func runSearch(cmd *cobra.Command, configPath, project, query, mode string, limit int, minScore float32, fileIDs, fileTypes, languages []string, asJSON bool) error {
	s, err := buildStack(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer s.close(ctx)

	resp, err := s.engine.Search(ctx, clientKey, &models.SearchRequest{
		ProjectID: project,
		Query:     query,
		Mode:      models.SearchMode(mode),
		Limit:     limit,
		MinScore:  minScore,
		Filters: models.SearchFilters{
			FileIDs:   fileIDs,
			FileTypes: fileTypes,
			Languages: languages,
		},
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.TotalCount == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Fprintf(out, "%d. [%.3f] %s#%d\n", i+1, r.Score, r.Chunk.FileID, r.Chunk.Index)
		fmt.Fprintf(out, "   %s\n", excerpt(r.Chunk.Content, 160))
	}
	fmt.Fprintf(out, "\n%d results in %s", resp.TotalCount, resp.QueryTime.Round(time.Millisecond))
	if resp.Cached {
		fmt.Fprint(out, " (cached)")
	}
	fmt.Fprintln(out)
	return nil
}

func runIDs(cmd *cobra.Command, configPath, project string) error {
	s, err := buildStack(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer s.close(ctx)

	ids, err := s.orchestrator.ListFileIDs(ctx, project)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents indexed.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runDeleteDoc(cmd *cobra.Command, configPath, project, fileID string) error {
	s, err := buildStack(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer s.close(ctx)

	removed, err := s.orchestrator.DeleteDocument(ctx, project, fileID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s: %d chunks removed\n", project, fileID, removed)
	return nil
}

func runDeleteProject(cmd *cobra.Command, configPath, project string, force bool) error {
	if !force {
		fmt.Fprintf(cmd.OutOrStdout(), "Delete every document in project %q? [y/N]: ", project)
		reader := bufio.NewReader(cmd.InOrStdin())
		line, _ := reader.ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	s, err := buildStack(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer s.close(ctx)

	removed, err := s.orchestrator.DeleteProject(ctx, project)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s: %d chunks removed\n", project, removed)
	return nil
}

func runStats(cmd *cobra.Command, configPath, project string) error {
	s, err := buildStack(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer s.close(ctx)

	out := cmd.OutOrStdout()
	if project != "" {
		stats, err := s.engine.Stats(ctx, project)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Project:   %s\n", stats.ProjectID)
		fmt.Fprintf(out, "Documents: %d\n", stats.TotalDocuments)
		fmt.Fprintf(out, "Chunks:    %d\n", stats.TotalChunks)
		if stats.StorageBytes > 0 {
			fmt.Fprintf(out, "Storage:   %d bytes\n", stats.StorageBytes)
		}
		if stats.LastIndexed != nil {
			fmt.Fprintf(out, "Indexed:   %s\n", stats.LastIndexed.Format(time.RFC3339))
		}
		return nil
	}

	stats, err := s.engine.SystemStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Projects:  %d\n", stats.TotalProjects)
	fmt.Fprintf(out, "Documents: %d\n", stats.TotalDocuments)
	fmt.Fprintf(out, "Chunks:    %d\n", stats.TotalChunks)
	if stats.EmbeddingDimension > 0 {
		fmt.Fprintf(out, "Dimension: %d\n", stats.EmbeddingDimension)
	}
	return nil
}

func runHealth(cmd *cobra.Command, configPath string) error {
	s, err := buildStack(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	defer s.close(ctx)

	if err := s.engine.Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK (provider %s, store %s)\n",
		s.cfg.Embedding.Provider, s.cfg.Store.Backend)
	return nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata pair %q, want key=value", pair)
		}
		meta[key] = value
	}
	return meta, nil
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
