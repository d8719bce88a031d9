package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/phuslu/log"

	"github.com/dnys1/mcp-docs/internal/search"
	"github.com/dnys1/mcp-docs/internal/storage"
)

// ToolName builds the tool name for a source or group, sanitized to the
// snake_case MCP clients expect.
func ToolName(name string) string {
	return "search_" + sanitizeName(name) + "_docs"
}

// sanitizeName maps a source name onto [a-z0-9_].
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func toolDescription(name, description string) string {
	if description != "" {
		return fmt.Sprintf("Search the %s documentation. %s", name, description)
	}
	return fmt.Sprintf("Search the %s documentation.", name)
}

func searchInputSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query (natural language or keywords)",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of documents to return",
				"default":     search.DefaultLimit,
				"minimum":     1,
				"maximum":     20,
			},
		},
		Required: []string{"query"},
	}
}

func searchDocsTool(src *storage.Source) mcp.Tool {
	return mcp.Tool{
		Name:        ToolName(src.Name),
		Description: toolDescription(src.Name, src.Description),
		InputSchema: searchInputSchema(),
	}
}

func searchGroupTool(group string, members []*storage.Source) mcp.Tool {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return mcp.Tool{
		Name:        ToolName(group),
		Description: fmt.Sprintf("Search the %s documentation (covers %s).", group, strings.Join(names, ", ")),
		InputSchema: searchInputSchema(),
	}
}

func (s *Server) handleSearchDocs(src *storage.Source) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, limit, errResult := parseSearchArgs(request)
		if errResult != nil {
			return errResult, nil
		}

		result, err := s.search.Search(ctx, src.Name, query, search.Options{Limit: limit})
		if err != nil {
			// Failures are logged and answered like an empty result; error
			// detail never reaches the client
			log.Error().Str("source", src.Name).Str("query", query).Err(err).Msg("search failed")
			return mcp.NewToolResultText(formatResult(query, &search.Result{})), nil
		}
		return mcp.NewToolResultText(formatResult(query, result)), nil
	}
}

func (s *Server) handleSearchGroup(group string, members []*storage.Source) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, limit, errResult := parseSearchArgs(request)
		if errResult != nil {
			return errResult, nil
		}

		result, err := s.search.SearchGroup(ctx, group, names, query, search.Options{Limit: limit})
		if err != nil {
			log.Error().Str("group", group).Str("query", query).Err(err).Msg("group search failed")
			return mcp.NewToolResultText(formatResult(query, &search.Result{})), nil
		}
		return mcp.NewToolResultText(formatResult(query, result)), nil
	}
}

// parseSearchArgs extracts query and limit from a tool call. JSON numbers
// arrive as float64.
func parseSearchArgs(request mcp.CallToolRequest) (string, int, *mcp.CallToolResult) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", 0, mcp.NewToolResultText("Invalid arguments: expected an object")
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", 0, mcp.NewToolResultText("The query parameter is required")
	}

	limit := 0
	if raw, ok := args["limit"].(float64); ok && raw > 0 {
		limit = int(raw)
	}
	return query, limit, nil
}

// formatResult renders a search result as markdown, one section per
// document separated by horizontal rules.
func formatResult(query string, result *search.Result) string {
	if len(result.Documents) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	sections := make([]string, len(result.Documents))
	for i, doc := range result.Documents {
		sections[i] = fmt.Sprintf("## %s\n%s\n\n%s", doc.Title, doc.URL, doc.Content)
	}
	out := strings.Join(sections, "\n\n---\n\n")
	if result.Truncated {
		out += "\n\n_Results truncated to fit the response size limit._"
	}
	return out
}
