package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dnys1/mcp-docs/internal/pipeline"
	"github.com/dnys1/mcp-docs/internal/storage"
)

var ingestFlags struct {
	resume bool
	dryRun bool
	all    bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [name]",
	Short: "Fetch, chunk, embed, and index a source's documentation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		p := pipeline.New(store, emb, newDescriber(), newFetcherFactory())
		opts := pipeline.Options{Resume: ingestFlags.resume, DryRun: ingestFlags.dryRun}

		var sources []*storage.Source
		switch {
		case ingestFlags.all:
			sources, err = store.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				return fmt.Errorf("no sources registered")
			}
		case len(args) == 1:
			src, err := store.GetSource(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("unknown source %q (register it with \"mcp-docs add\")", args[0])
			}
			sources = []*storage.Source{src}
		default:
			return fmt.Errorf("a source name or --all is required")
		}

		for _, src := range sources {
			report, err := p.Ingest(cmd.Context(), src, opts)
			if err != nil {
				return err
			}
			printReport(src.Name, report)
		}
		return nil
	},
}

func printReport(name string, report *pipeline.Report) {
	if report.DryRun != nil {
		d := report.DryRun
		fmt.Printf("%s (dry run): %d documents, %d bytes, ~%d chunks\n",
			name, d.DocumentCount, d.TotalContentSize, d.EstimatedTotalChunks)
		for _, doc := range d.Documents {
			fmt.Printf("  %-60s %8d bytes  %s\n", doc.URL, doc.Size, doc.Title)
		}
		return
	}
	fmt.Printf("%s: processed=%d skipped=%d failed=%d\n",
		name, report.Processed, report.Skipped, report.Failed)
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestFlags.resume, "resume", false, "resume an interrupted ingestion run")
	ingestCmd.Flags().BoolVar(&ingestFlags.dryRun, "dry-run", false, "report what would be ingested without writing")
	ingestCmd.Flags().BoolVar(&ingestFlags.all, "all", false, "ingest every registered source")
	rootCmd.AddCommand(ingestCmd)
}
