package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnys1/mcp-docs/internal/cache"
	"github.com/dnys1/mcp-docs/internal/search"
	"github.com/dnys1/mcp-docs/internal/storage"
)

func TestToolName(t *testing.T) {
	assert.Equal(t, "search_hono_docs", ToolName("hono"))
	assert.Equal(t, "search_aws_s3_docs", ToolName("aws-s3"))
	assert.Equal(t, "search_my_lib_2_docs", ToolName("My Lib 2"))
	assert.Equal(t, "search_a_b_docs", ToolName("a.b"))
}

func TestToolDescription(t *testing.T) {
	src := &storage.Source{Name: "hono", Description: "Web framework for the edge."}
	tool := searchDocsTool(src)
	assert.Equal(t, "search_hono_docs", tool.Name)
	assert.Contains(t, tool.Description, "hono")
	assert.Contains(t, tool.Description, "Web framework for the edge.")

	tool = searchDocsTool(&storage.Source{Name: "bare"})
	assert.Equal(t, "Search the bare documentation.", tool.Description)
}

func TestSearchGroupToolListsMembers(t *testing.T) {
	tool := searchGroupTool("aws", []*storage.Source{
		{Name: "aws-s3"}, {Name: "aws-lambda"},
	})
	assert.Equal(t, "search_aws_docs", tool.Name)
	assert.Contains(t, tool.Description, "aws-s3")
	assert.Contains(t, tool.Description, "aws-lambda")
}

func TestFormatResultMarkdown(t *testing.T) {
	result := &search.Result{
		Documents: []search.ResultDocument{
			{Title: "Alpha", URL: "https://d/one", Content: "alpha body"},
			{Title: "Beta", URL: "https://d/two", Content: "beta body"},
		},
	}
	got := formatResult("cats", result)
	assert.Contains(t, got, "## Alpha\nhttps://d/one\n\nalpha body")
	assert.Contains(t, got, "\n\n---\n\n")
	assert.Contains(t, got, "## Beta")
	assert.NotContains(t, got, "truncated")
}

func TestFormatResultTruncationNote(t *testing.T) {
	result := &search.Result{
		Documents: []search.ResultDocument{{Title: "A", URL: "u", Content: "c"}},
		Truncated: true,
	}
	assert.Contains(t, formatResult("q", result), "truncated")
}

func TestFormatResultEmpty(t *testing.T) {
	got := formatResult("cats", &search.Result{Documents: []search.ResultDocument{}})
	assert.Equal(t, `No results found for "cats".`, got)
}

// failingEmbedder makes every search fail at the embedding step.
type failingEmbedder struct{}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider unavailable")
}
func (failingEmbedder) Dimension() int   { return 3 }
func (failingEmbedder) Provider() string { return "fake" }
func (failingEmbedder) Model() string    { return "fake-model" }
func (failingEmbedder) Close() error     { return nil }

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestHandlersAnswerFailuresAsNoResults(t *testing.T) {
	ctx := context.Background()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	src := &storage.Source{
		Name:    "demo",
		Type:    storage.SourceTypeLinkManifest,
		BaseURL: "https://demo.example.com",
	}
	require.NoError(t, store.UpsertSource(ctx, src))

	svc := search.New(store, failingEmbedder{}, cache.New(10, time.Minute))
	s := &Server{store: store, search: svc}

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      ToolName("demo"),
			Arguments: map[string]interface{}{"query": "cats"},
		},
	}

	// Failures surface as the empty-result answer, never the error text
	result, err := s.handleSearchDocs(src)(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, `No results found for "cats".`, resultText(t, result))

	result, err = s.handleSearchGroup("grp", []*storage.Source{src})(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, `No results found for "cats".`, resultText(t, result))
}
