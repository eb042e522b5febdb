package main

import (
	"github.com/spf13/cobra"
)

// buildIngestCmd creates the "ingest" command.
func buildIngestCmd() *cobra.Command {
	var (
		configPath string
		project    string
		fileID     string
		path       string
		name       string
		fileType   string
		language   string
		meta       []string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a document into a project",
		Long: `Ingest reads a file, splits it into chunks, embeds each chunk,
and commits them to the store. Re-ingesting the same file-id replaces
the document's chunks atomically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, configPath, project, fileID, path, name, fileType, language, meta)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&project, "project", "", "Project to ingest into")
	cmd.Flags().StringVar(&fileID, "file-id", "", "Document identifier, unique within the project")
	cmd.Flags().StringVar(&path, "path", "", "Path to the file to ingest (- for stdin)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable document name (defaults to the file name)")
	cmd.Flags().StringVar(&fileType, "type", "", "Document type for filtering (e.g. code, documentation)")
	cmd.Flags().StringVar(&language, "language", "", "Document language for filtering (e.g. go, python)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Metadata key=value pair (repeatable)")
	cobra.CheckErr(cmd.MarkFlagRequired("project"))
	cobra.CheckErr(cmd.MarkFlagRequired("file-id"))
	cobra.CheckErr(cmd.MarkFlagRequired("path"))
	return cmd
}

// buildSearchCmd creates the "search" command.
func buildSearchCmd() *cobra.Command {
	var (
		configPath string
		project    string
		mode       string
		limit      int
		minScore   float32
		fileIDs    []string
		fileTypes  []string
		languages  []string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a project's indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, configPath, project, args[0], mode, limit, minScore, fileIDs, fileTypes, languages, asJSON)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&project, "project", "", "Project to search in")
	cmd.Flags().StringVar(&mode, "mode", "semantic", "Search mode: semantic, keyword, or hybrid")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (0 uses the configured default)")
	cmd.Flags().Float32Var(&minScore, "min-score", 0, "Minimum relevance score (0-1)")
	cmd.Flags().StringSliceVar(&fileIDs, "file-id", nil, "Restrict to the listed documents")
	cmd.Flags().StringSliceVar(&fileTypes, "type", nil, "Restrict to the listed document types")
	cmd.Flags().StringSliceVar(&languages, "lang", nil, "Restrict to the listed languages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit results as JSON")
	cobra.CheckErr(cmd.MarkFlagRequired("project"))
	return cmd
}

// buildIDsCmd creates the "ids" command.
func buildIDsCmd() *cobra.Command {
	var (
		configPath string
		project    string
	)
	cmd := &cobra.Command{
		Use:   "ids",
		Short: "List the document identifiers indexed in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIDs(cmd, configPath, project)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&project, "project", "", "Project to list")
	cobra.CheckErr(cmd.MarkFlagRequired("project"))
	return cmd
}

// buildDeleteCmd creates the "delete" command group.
func buildDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove indexed content",
	}
	cmd.AddCommand(buildDeleteDocCmd(), buildDeleteProjectCmd())
	return cmd
}

func buildDeleteDocCmd() *cobra.Command {
	var (
		configPath string
		project    string
		fileID     string
	)
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Remove one document and all of its chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeleteDoc(cmd, configPath, project, fileID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&project, "project", "", "Project that owns the document")
	cmd.Flags().StringVar(&fileID, "file-id", "", "Document identifier to remove")
	cobra.CheckErr(cmd.MarkFlagRequired("project"))
	cobra.CheckErr(cmd.MarkFlagRequired("file-id"))
	return cmd
}

func buildDeleteProjectCmd() *cobra.Command {
	var (
		configPath string
		project    string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Remove every document in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeleteProject(cmd, configPath, project, force)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&project, "project", "", "Project to remove")
	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")
	cobra.CheckErr(cmd.MarkFlagRequired("project"))
	return cmd
}

// buildStatsCmd creates the "stats" command.
func buildStatsCmd() *cobra.Command {
	var (
		configPath string
		project    string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Stats reports document and chunk counts. With --project it scopes
to one project; without it, it aggregates across all projects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, configPath, project)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&project, "project", "", "Project to report on (all projects when empty)")
	return cmd
}

// buildHealthCmd creates the "health" command.
func buildHealthCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Verify the store and embedding provider are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}
