// Package cli implements the mcp-docs command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dnys1/mcp-docs/internal/config"
	"github.com/dnys1/mcp-docs/internal/embedder"
	"github.com/dnys1/mcp-docs/internal/fetcher"
	"github.com/dnys1/mcp-docs/internal/logging"
	"github.com/dnys1/mcp-docs/internal/storage"
	"github.com/dnys1/mcp-docs/internal/synth"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mcp-docs",
	Short: "Documentation search server for MCP clients",
	Long: `mcp-docs ingests documentation sites into a local hybrid search index
(vector + full-text) and serves per-source search tools over the
Model Context Protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	// Running without a subcommand serves MCP on stdio, so the binary can
	// be dropped into an MCP client config as is
	RunE: runServe,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// openStore opens the configured database.
func openStore() (*storage.SQLiteStore, error) {
	store, err := storage.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.DatabaseURL, err)
	}
	return store, nil
}

// newEmbedder builds the configured embedding provider.
func newEmbedder() (embedder.Embedder, error) {
	return embedder.New(cfg.EmbeddingProvider, cfg.EmbeddingKey(), cfg.EmbeddingModel, cfg.EmbeddingDimensions)
}

// newDescriber builds the description synthesizer; it degrades to the
// deterministic fallback without an API key.
func newDescriber() synth.Describer {
	return synth.NewOpenAIDescriber(cfg.OpenAIKey, "")
}

// newFetcherFactory builds per-source fetchers for the pipeline.
func newFetcherFactory() func(src *storage.Source, cachedURLs []string) fetcher.Fetcher {
	return func(src *storage.Source, cachedURLs []string) fetcher.Fetcher {
		opts := src.Options
		if opts == nil {
			opts = &storage.SourceOptions{}
		}

		if src.Type == storage.SourceTypeWebCrawl {
			client := fetcher.NewFirecrawlClient(cfg.FirecrawlURL, cfg.FirecrawlKey)
			return fetcher.NewCrawlFetcher(src.BaseURL, fetcher.CrawlOptions{
				Limit:        opts.CrawlLimit,
				IncludePaths: opts.IncludePaths,
				ExcludePaths: opts.ExcludePaths,
				CachedURLs:   cachedURLs,
			}, client)
		}
		return fetcher.NewManifestFetcher(src.BaseURL, opts.IncludeOptional)
	}
}
