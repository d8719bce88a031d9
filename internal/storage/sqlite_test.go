package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEmbedding(seed float32) []float32 {
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = seed + float32(i)*0.1
	}
	return vec
}

func addSource(t *testing.T, store *SQLiteStore, name, group string) *Source {
	t.Helper()
	src := &Source{
		Name:      name,
		Type:      SourceTypeLinkManifest,
		BaseURL:   "https://" + name + ".example.com/llms.txt",
		GroupName: group,
	}
	require.NoError(t, store.UpsertSource(context.Background(), src))
	return src
}

func addDocument(t *testing.T, store *SQLiteStore, sourceID int64, url, content string) *Document {
	t.Helper()
	doc := &Document{
		SourceID:    sourceID,
		URL:         url,
		Title:       "Doc " + url,
		Path:        "docs/page",
		Content:     content,
		ContentHash: fmt.Sprintf("%064x", len(content)),
	}
	require.NoError(t, store.UpsertDocument(context.Background(), doc))
	return doc
}

func TestUpsertSourceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := &Source{
		Name:        "hono",
		Type:        SourceTypeLinkManifest,
		BaseURL:     "https://hono.dev/llms.txt",
		Description: "Hono web framework docs",
		Options: &SourceOptions{
			IncludeOptional: true,
			IncludePaths:    []string{"docs/"},
		},
	}
	require.NoError(t, store.UpsertSource(ctx, src))
	assert.NotZero(t, src.ID)

	got, err := store.GetSource(ctx, "hono")
	require.NoError(t, err)
	assert.Equal(t, src.ID, got.ID)
	assert.Equal(t, SourceTypeLinkManifest, got.Type)
	assert.Equal(t, "Hono web framework docs", got.Description)
	require.NotNil(t, got.Options)
	assert.True(t, got.Options.IncludeOptional)
	assert.Equal(t, []string{"docs/"}, got.Options.IncludePaths)

	// Re-register under a new type; same row, updated fields
	src2 := &Source{
		Name:    "hono",
		Type:    SourceTypeWebCrawl,
		BaseURL: "https://hono.dev",
	}
	require.NoError(t, store.UpsertSource(ctx, src2))
	assert.Equal(t, src.ID, src2.ID)

	got, err = store.GetSource(ctx, "hono")
	require.NoError(t, err)
	assert.Equal(t, SourceTypeWebCrawl, got.Type)
}

func TestGetSourceNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSource(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLegacyDescriptionLiftedFromOptions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := addSource(t, store, "legacy", "")

	// Simulate an older writer that only knew about options.description
	_, err := store.db.ExecContext(ctx,
		`UPDATE sources SET description = NULL, options = ? WHERE id = ?`,
		`{"description":"from options"}`, src.ID)
	require.NoError(t, err)

	got, err := store.GetSource(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "from options", got.Description)
}

func TestGroupResolution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addSource(t, store, "aws-s3", "aws")
	addSource(t, store, "aws-lambda", "aws")
	addSource(t, store, "solo", "")

	isGroup, err := store.IsGroup(ctx, "aws")
	require.NoError(t, err)
	assert.True(t, isGroup)

	members, err := store.SourcesByGroup(ctx, "aws")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "aws-lambda", members[0].Name)
	assert.Equal(t, "aws-s3", members[1].Name)

	isGroup, err = store.IsGroup(ctx, "solo")
	require.NoError(t, err)
	assert.False(t, isGroup)

	isGroup, err = store.IsGroup(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, isGroup)
}

func TestSourceNameShadowsGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addSource(t, store, "member", "aws")
	addSource(t, store, "aws", "") // exact name wins over the group

	isGroup, err := store.IsGroup(ctx, "aws")
	require.NoError(t, err)
	assert.False(t, isGroup)
}

func TestRemoveSourceCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := addSource(t, store, "gone", "")
	doc := addDocument(t, store, src.ID, "https://gone.example.com/a", "alpha content")
	require.NoError(t, store.InsertChunk(ctx, &Chunk{
		DocumentID: doc.ID,
		ChunkIndex: 0,
		Content:    "alpha content",
		Embedding:  testEmbedding(0.1),
	}))
	_, err := store.CreateProgress(ctx, src.ID, 1)
	require.NoError(t, err)

	removed, err := store.RemoveSource(ctx, "gone")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = store.GetSource(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count))
	assert.Zero(t, count)
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&count))
	assert.Zero(t, count)
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM ingestion_progress`).Scan(&count))
	assert.Zero(t, count)

	removed, err = store.RemoveSource(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addSource(t, store, "aws-s3", "aws")
	addSource(t, store, "aws-lambda", "aws")
	addSource(t, store, "other", "")

	removed, err := store.RemoveGroup(ctx, "aws")
	require.NoError(t, err)
	assert.True(t, removed)

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "other", sources[0].Name)
}

func TestUpsertDocumentReplacesChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := addSource(t, store, "docs", "")
	doc := addDocument(t, store, src.ID, "https://docs.example.com/a", "version one")
	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertChunk(ctx, &Chunk{
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    fmt.Sprintf("version one part %d", i),
			Embedding:  testEmbedding(float32(i)),
		}))
	}

	count, err := store.CountChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Re-ingesting the same URL with new content must drop the old chunks
	// so stale embeddings cannot be served
	doc2 := addDocument(t, store, src.ID, "https://docs.example.com/a", "version two")
	assert.Equal(t, doc.ID, doc2.ID)

	count, err = store.CountChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.InsertChunk(ctx, &Chunk{
		DocumentID: doc.ID,
		ChunkIndex: 0,
		Content:    "version two",
		Embedding:  testEmbedding(9),
	}))

	hits, err := store.LexicalSearch(ctx, "version", SearchFilters{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "version two", hits[0].Content)
}

func TestGetDocumentsByIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := addSource(t, store, "docs", "")
	a := addDocument(t, store, src.ID, "https://docs.example.com/a", "aaa")
	b := addDocument(t, store, src.ID, "https://docs.example.com/b", "bbb")

	docs, err := store.GetDocumentsByIDs(ctx, []int64{a.ID, b.ID, 9999})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = store.GetDocumentsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListDocumentURLs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := addSource(t, store, "docs", "")
	addDocument(t, store, src.ID, "https://docs.example.com/b", "bbb")
	addDocument(t, store, src.ID, "https://docs.example.com/a", "aaa")

	urls, err := store.ListDocumentURLs(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://docs.example.com/a", "https://docs.example.com/b"}, urls)
}

func TestProgressLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := addSource(t, store, "docs", "")

	_, err := store.GetIncompleteProgress(ctx, src.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := store.CreateProgress(ctx, src.ID, 10)
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, ProgressInProgress, p.Status)

	p.Processed = 4
	p.Skipped = 1
	p.LastProcessedURL = "https://docs.example.com/four"
	require.NoError(t, store.UpdateProgress(ctx, p))

	got, err := store.GetIncompleteProgress(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, 4, got.Processed)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, "https://docs.example.com/four", got.LastProcessedURL)

	p.Processed = 10
	require.NoError(t, store.CompleteProgress(ctx, p))
	assert.Equal(t, ProgressCompleted, p.Status)

	_, err = store.GetIncompleteProgress(ctx, src.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteProgressWithFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := addSource(t, store, "docs", "")
	p, err := store.CreateProgress(ctx, src.ID, 5)
	require.NoError(t, err)

	p.Processed = 3
	p.Failed = 2
	p.ErrorMessage = "2 documents failed"
	require.NoError(t, store.CompleteProgress(ctx, p))
	assert.Equal(t, ProgressCompletedWithErrors, p.Status)
}

func TestTouchSourceIngested(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := addSource(t, store, "docs", "")
	got, err := store.GetSource(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, got.LastIngestedAt.IsZero())

	require.NoError(t, store.TouchSourceIngested(ctx, src.ID))

	got, err = store.GetSource(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, got.LastIngestedAt.IsZero())
}
