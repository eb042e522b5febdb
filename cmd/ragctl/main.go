// Package main provides the CLI entry point for the retrieval engine.
//
// ragctl ingests documents into a project, searches them with
// semantic, keyword, or hybrid retrieval, and manages the indexed
// content.
//
// # Basic Usage
//
// Ingest a file:
//
//	ragctl ingest --project docs --file-id readme --path README.md
//
// Search a project:
//
//	ragctl search --project docs "how do I configure the store"
//
// Inspect what is indexed:
//
//	ragctl ids --project docs
//	ragctl stats --project docs
//
// # Environment Variables
//
// Configuration can be provided via environment variables:
//
//   - RAGCTL_CONFIG: Path to configuration file
//   - EMBEDDING_PROVIDER: ollama, openai, or tei
//   - OPENAI_API_KEY: OpenAI API key for the openai provider
//   - STORE_BACKEND: pgvector, qdrant, sqlite, or memory
//   - DATABASE_URL: PostgreSQL connection string for pgvector
//   - QDRANT_URL: Qdrant server URL
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ragctl",
		Short: "ragctl - Multi-tenant document retrieval engine",
		Long: `ragctl ingests documents and retrieves them with semantic,
keyword, or hybrid search.

Embedding providers: Ollama, OpenAI, TEI
Store backends: pgvector, Qdrant, SQLite, in-memory`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildIngestCmd(),
		buildSearchCmd(),
		buildIDsCmd(),
		buildDeleteCmd(),
		buildStatsCmd(),
		buildHealthCmd(),
	)

	return rootCmd
}

func defaultConfigPath() string {
	if p := os.Getenv("RAGCTL_CONFIG"); p != "" {
		return p
	}
	return ""
}
