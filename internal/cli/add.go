package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dnys1/mcp-docs/internal/storage"
)

var addFlags struct {
	typ             string
	url             string
	group           string
	description     string
	crawlLimit      int
	includeOptional bool
	includePaths    []string
	excludePaths    []string
	fromFile        string
}

// sourceSpec is one entry in a sources file.
type sourceSpec struct {
	Name        string `yaml:"name" validate:"required"`
	Type        string `yaml:"type" validate:"required,oneof=link_manifest web_crawl"`
	URL         string `yaml:"url" validate:"required,url"`
	Group       string `yaml:"group"`
	Description string `yaml:"description"`
	Options     struct {
		CrawlLimit      int      `yaml:"crawl_limit" validate:"gte=0"`
		IncludeOptional bool     `yaml:"include_optional"`
		IncludePaths    []string `yaml:"include_paths"`
		ExcludePaths    []string `yaml:"exclude_paths"`
	} `yaml:"options"`
}

type sourcesFile struct {
	Sources []sourceSpec `yaml:"sources" validate:"required,min=1,dive"`
}

var addCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a documentation source",
	Long: `Register a documentation source by name, or bulk-register from a YAML
file with --from-file. Registration does not fetch anything; run
"mcp-docs ingest" afterwards.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if addFlags.fromFile != "" {
			return addFromFile(cmd.Context(), store, addFlags.fromFile)
		}

		if len(args) != 1 {
			return fmt.Errorf("a source name is required unless --from-file is given")
		}
		spec := sourceSpec{
			Name:        args[0],
			Type:        addFlags.typ,
			URL:         addFlags.url,
			Group:       addFlags.group,
			Description: addFlags.description,
		}
		spec.Options.CrawlLimit = addFlags.crawlLimit
		spec.Options.IncludeOptional = addFlags.includeOptional
		spec.Options.IncludePaths = addFlags.includePaths
		spec.Options.ExcludePaths = addFlags.excludePaths

		if err := validator.New().Struct(spec); err != nil {
			return fmt.Errorf("invalid source: %w", err)
		}
		return addSource(cmd.Context(), store, spec)
	},
}

func addFromFile(ctx context.Context, store storage.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return fmt.Errorf("invalid sources file %s: %w", path, err)
	}

	for _, spec := range file.Sources {
		if err := addSource(ctx, store, spec); err != nil {
			return err
		}
	}
	return nil
}

func addSource(ctx context.Context, store storage.Store, spec sourceSpec) error {
	src := &storage.Source{
		Name:        spec.Name,
		Type:        storage.SourceType(spec.Type),
		BaseURL:     spec.URL,
		GroupName:   spec.Group,
		Description: spec.Description,
		Options: &storage.SourceOptions{
			CrawlLimit:      spec.Options.CrawlLimit,
			IncludeOptional: spec.Options.IncludeOptional,
			IncludePaths:    spec.Options.IncludePaths,
			ExcludePaths:    spec.Options.ExcludePaths,
		},
	}
	if err := store.UpsertSource(ctx, src); err != nil {
		return fmt.Errorf("failed to register %q: %w", spec.Name, err)
	}
	fmt.Printf("Registered source %q (%s)\n", src.Name, src.Type)
	return nil
}

func init() {
	addCmd.Flags().StringVar(&addFlags.typ, "type", "link_manifest", "source type: link_manifest or web_crawl")
	addCmd.Flags().StringVar(&addFlags.url, "url", "", "manifest URL or crawl base URL")
	addCmd.Flags().StringVar(&addFlags.group, "group", "", "group this source under a shared search tool")
	addCmd.Flags().StringVar(&addFlags.description, "description", "", "source description (derived automatically if omitted)")
	addCmd.Flags().IntVar(&addFlags.crawlLimit, "crawl-limit", 0, "maximum pages to crawl")
	addCmd.Flags().BoolVar(&addFlags.includeOptional, "include-optional", false, "include optional manifest sections")
	addCmd.Flags().StringSliceVar(&addFlags.includePaths, "include-path", nil, "crawl include path pattern (repeatable)")
	addCmd.Flags().StringSliceVar(&addFlags.excludePaths, "exclude-path", nil, "crawl exclude path pattern (repeatable)")
	addCmd.Flags().StringVar(&addFlags.fromFile, "from-file", "", "register sources from a YAML file")
	rootCmd.AddCommand(addCmd)
}
