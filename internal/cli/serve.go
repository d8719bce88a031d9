package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dnys1/mcp-docs/internal/cache"
	"github.com/dnys1/mcp-docs/internal/mcp"
	"github.com/dnys1/mcp-docs/internal/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve documentation search tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	emb, err := newEmbedder()
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	searchSvc := search.New(store, emb, cache.New(cache.DefaultMaxSize, 30*time.Minute))

	srv, err := mcp.NewServer(cmd.Context(), store, searchSvc)
	if err != nil {
		return err
	}
	return srv.Serve()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
