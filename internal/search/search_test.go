package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnys1/mcp-docs/internal/cache"
	"github.com/dnys1/mcp-docs/internal/storage"
)

// mapEmbedder returns a fixed vector per text, so tests control geometry.
type mapEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (m *mapEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if vec, ok := m.vectors[t]; ok {
			out[i] = vec
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func (m *mapEmbedder) Dimension() int   { return 3 }
func (m *mapEmbedder) Provider() string { return "fake" }
func (m *mapEmbedder) Model() string    { return "fake-model" }
func (m *mapEmbedder) Close() error     { return nil }

type seedChunk struct {
	content   string
	embedding []float32
}

type seedDoc struct {
	url     string
	title   string
	content string
	chunks  []seedChunk
}

func seedStore(t *testing.T, sourceName string, docs []seedDoc) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	seedSource(t, store, sourceName, docs)
	return store
}

func seedSource(t *testing.T, store *storage.SQLiteStore, sourceName string, docs []seedDoc) {
	t.Helper()
	ctx := context.Background()

	src := &storage.Source{
		Name:    sourceName,
		Type:    storage.SourceTypeLinkManifest,
		BaseURL: "https://" + sourceName + ".example.com",
	}
	require.NoError(t, store.UpsertSource(ctx, src))

	for _, d := range docs {
		doc := &storage.Document{
			SourceID:    src.ID,
			URL:         d.url,
			Title:       d.title,
			Content:     d.content,
			ContentHash: strings.Repeat("0", 64),
		}
		require.NoError(t, store.UpsertDocument(ctx, doc))
		for i, c := range d.chunks {
			require.NoError(t, store.InsertChunk(ctx, &storage.Chunk{
				DocumentID: doc.ID,
				ChunkIndex: i,
				Content:    c.content,
				Embedding:  c.embedding,
			}))
		}
	}
}

func newService(store *storage.SQLiteStore, emb *mapEmbedder) *Service {
	return New(store, emb, cache.New(100, time.Minute))
}

func TestBasicVectorHit(t *testing.T) {
	e1 := []float32{1, 0, 0}
	store := seedStore(t, "demo", []seedDoc{
		{url: "https://d/one", title: "Alpha", content: "cats dogs birds",
			chunks: []seedChunk{{"cats dogs birds", e1}}},
	})
	emb := &mapEmbedder{vectors: map[string][]float32{"cats": e1}}
	svc := newService(store, emb)

	result, err := svc.Search(context.Background(), "demo", "cats", Options{})
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "Alpha", result.Documents[0].Title)
	assert.Equal(t, "https://d/one", result.Documents[0].URL)
	assert.False(t, result.Truncated)
	assert.Equal(t, len(result.Documents[0].Content), result.TotalChars)
}

// rrfSeed builds three chunks where the vector leg ranks A, C, B and the
// lexical leg (query "alpha") ranks B, A.
func rrfSeed(t *testing.T) (*storage.SQLiteStore, *mapEmbedder) {
	store := seedStore(t, "demo", []seedDoc{
		{url: "https://d/a", title: "A", content: "doc a",
			chunks: []seedChunk{{"alpha beta gamma", []float32{1, 0, 0}}}},
		{url: "https://d/b", title: "B", content: "doc b",
			chunks: []seedChunk{{"alpha alpha alpha alpha", []float32{0, 1, 0}}}},
		{url: "https://d/c", title: "C", content: "doc c",
			chunks: []seedChunk{{"unrelated words entirely", []float32{0.9, 0.1, 0}}}},
	})
	emb := &mapEmbedder{vectors: map[string][]float32{
		"alpha":          {1, 0, 0},
		"xyznonexistent": {1, 0, 0},
	}}
	return store, emb
}

func TestRRFBoostsDualMatches(t *testing.T) {
	store, emb := rrfSeed(t)
	svc := newService(store, emb)

	// Vector ranks: A(0), C(1), B(2). Lexical "alpha": B(0), A(1).
	// RRF scores: A = 1/61 + 1/62, B = 1/63 + 1/61, C = 1/62.
	result, err := svc.Search(context.Background(), "demo", "alpha", Options{Limit: 3})
	require.NoError(t, err)
	require.Len(t, result.Documents, 3)
	assert.Equal(t, "A", result.Documents[0].Title)
	assert.Equal(t, "B", result.Documents[1].Title)
	assert.Equal(t, "C", result.Documents[2].Title)
}

func TestEmptyLexicalFallsBackToVectorOrder(t *testing.T) {
	store, emb := rrfSeed(t)
	svc := newService(store, emb)

	result, err := svc.Search(context.Background(), "demo", "xyznonexistent", Options{Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Documents, 2)
	assert.Equal(t, "A", result.Documents[0].Title)
	assert.Equal(t, "C", result.Documents[1].Title)
}

func TestQueryEmbeddingIsCached(t *testing.T) {
	store, emb := rrfSeed(t)
	svc := newService(store, emb)

	_, err := svc.Search(context.Background(), "demo", "alpha", Options{})
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "demo", "  ALPHA  ", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls, "second search must hit the cache")
}

func TestCharacterBudgetTruncates(t *testing.T) {
	e1 := []float32{1, 0, 0}
	long := strings.Repeat("All work and no play makes documentation dull. ", 20)
	store := seedStore(t, "demo", []seedDoc{
		{url: "https://d/a", title: "A", content: long,
			chunks: []seedChunk{{"first chunk", e1}}},
		{url: "https://d/b", title: "B", content: long,
			chunks: []seedChunk{{"second chunk", []float32{0.99, 0.01, 0}}}},
	})
	emb := &mapEmbedder{vectors: map[string][]float32{"query": e1}}
	svc := newService(store, emb)

	budget := len(long) + 100 // fits A whole, forces B to truncate
	result, err := svc.Search(context.Background(), "demo", "query", Options{MaxTotalChars: budget})
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.True(t, result.Truncated)
	assert.LessOrEqual(t, result.TotalChars, budget)
	assert.Contains(t, result.Documents[1].Content, "[Content truncated...]")
}

func TestSearchGroupPoolsAcrossSources(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e1 := []float32{1, 0, 0}
	seedSource(t, store, "one", []seedDoc{
		{url: "https://one/x", title: "One X", content: "one x content",
			chunks: []seedChunk{{"closest chunk", e1}}},
	})
	seedSource(t, store, "two", []seedDoc{
		{url: "https://two/y", title: "Two Y", content: "two y content",
			chunks: []seedChunk{{"farther chunk", []float32{0.5, 0.5, 0}}}},
	})

	emb := &mapEmbedder{vectors: map[string][]float32{"query": e1}}
	svc := newService(store, emb)

	result, err := svc.SearchGroup(context.Background(), "grp", []string{"one", "two"}, "query", Options{})
	require.NoError(t, err)
	require.Len(t, result.Documents, 2)
	assert.Equal(t, "One X", result.Documents[0].Title)
	assert.Equal(t, "Two Y", result.Documents[1].Title)
}

func TestSearchGroupFanOutIsDeterministic(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// Four sources whose chunks sit at strictly increasing distances from
	// the query vector, so the pooled order is unambiguous
	e1 := []float32{1, 0, 0}
	vectors := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0.7, 0.3, 0},
		{0.5, 0.5, 0},
	}
	names := make([]string, len(vectors))
	for i, vec := range vectors {
		name := fmt.Sprintf("src%d", i)
		names[i] = name
		seedSource(t, store, name, []seedDoc{
			{url: "https://" + name + "/p", title: name, content: name + " content",
				chunks: []seedChunk{{name + " chunk", vec}}},
		})
	}

	emb := &mapEmbedder{vectors: map[string][]float32{"query": e1}}
	svc := newService(store, emb)

	// The sources are searched concurrently; order must not depend on
	// which finishes first
	for run := 0; run < 5; run++ {
		result, err := svc.SearchGroup(context.Background(), "grp", names, "query", Options{})
		require.NoError(t, err)
		require.Len(t, result.Documents, len(names))
		for i, name := range names {
			assert.Equal(t, name, result.Documents[i].Title, "run %d", run)
		}
	}
}

func TestSearchGroupRequiresSources(t *testing.T) {
	store, emb := rrfSeed(t)
	svc := newService(store, emb)

	_, err := svc.SearchGroup(context.Background(), "empty", nil, "query", Options{})
	assert.Error(t, err)
}

func TestFuseRRFSymmetry(t *testing.T) {
	hits1 := []storage.ChunkHit{
		{DocumentID: 1, URL: "u1", Content: "c1", Distance: 0.1},
		{DocumentID: 2, URL: "u2", Content: "c2", Distance: 0.2},
	}
	hits2 := []storage.ChunkHit{
		{DocumentID: 2, URL: "u2", Content: "c2", Distance: 1.0},
		{DocumentID: 3, URL: "u3", Content: "c3", Distance: 2.0},
	}

	a := fuseRRF(hits1, hits2, 10)
	b := fuseRRF(hits2, hits1, 10)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].URL, b[i].URL, "fusion must weight both legs equally")
		assert.InDelta(t, a[i].Distance, b[i].Distance, 1e-12)
	}
}

func TestFuseRRFDistanceIsOneMinusScore(t *testing.T) {
	hits := []storage.ChunkHit{{DocumentID: 1, URL: "u", Content: "c"}}
	fused := fuseRRF(hits, hits, 10)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1-2.0/61.0, fused[0].Distance, 1e-12)
}
