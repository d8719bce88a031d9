package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dnys1/mcp-docs/internal/mcp"
	"github.com/dnys1/mcp-docs/internal/storage"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", mcp.ServerName, mcp.ServerVersion)
		fmt.Printf("  build mode:       %s\n", storage.BuildMode)
		fmt.Printf("  sqlite driver:    %s\n", storage.DriverName)
		fmt.Printf("  vector extension: %v\n", storage.VectorExtensionAvailable)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
