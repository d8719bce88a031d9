// Package search implements hybrid documentation search: a vector leg and a
// lexical leg run in parallel and are fused with Reciprocal Rank Fusion,
// then the winning chunks are materialized into a bounded document list.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/dnys1/mcp-docs/internal/cache"
	"github.com/dnys1/mcp-docs/internal/cleaner"
	"github.com/dnys1/mcp-docs/internal/embedder"
	"github.com/dnys1/mcp-docs/internal/storage"
)

const (
	// DefaultLimit is the document count returned when the caller doesn't
	// specify one.
	DefaultLimit = 5
	// DefaultMaxTotalChars bounds the total response size.
	DefaultMaxTotalChars = 50000

	// rrfK is the Reciprocal Rank Fusion constant.
	rrfK = 60
	// rrfKeyChunkPrefix is how many chunk characters join the URL in the
	// fusion key, so near-identical chunks from one page fuse together.
	rrfKeyChunkPrefix = 100

	// minFetchLimit floors the per-leg fetch depth.
	minFetchLimit = 15
)

// ResultDocument is one document in a search response.
type ResultDocument struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Result is a bounded search response.
type Result struct {
	Documents  []ResultDocument `json:"documents"`
	TotalChars int              `json:"total_chars"`
	Truncated  bool             `json:"truncated"`
}

// Options tunes a single search call.
type Options struct {
	Limit         int
	MaxTotalChars int
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MaxTotalChars <= 0 {
		o.MaxTotalChars = DefaultMaxTotalChars
	}
	return o
}

// Service runs hybrid searches against the store.
type Service struct {
	store    storage.Store
	embedder embedder.Embedder
	cache    *cache.Cache
}

// New creates a search service.
func New(store storage.Store, emb embedder.Embedder, c *cache.Cache) *Service {
	return &Service{store: store, embedder: emb, cache: c}
}

// Search runs a hybrid search scoped to one source.
func (s *Service) Search(ctx context.Context, source, query string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	queryVec, cacheHit, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	fetchLimit := opts.Limit * 3
	if fetchLimit < minFetchLimit {
		fetchLimit = minFetchLimit
	}
	filters := storage.SearchFilters{Source: source, Limit: fetchLimit}

	vectorHits, lexicalHits, legTimings, err := s.runLegs(ctx, queryVec, query, filters)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(vectorHits, lexicalHits, opts.Limit)
	result, err := s.materialize(ctx, fused, opts)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("source", source).
		Str("query", query).
		Bool("cache_hit", cacheHit).
		Dur("vector_leg", legTimings.vector).
		Dur("lexical_leg", legTimings.lexical).
		Dur("total", time.Since(start)).
		Int("documents", len(result.Documents)).
		Bool("truncated", result.Truncated).
		Msg("search")
	return result, nil
}

// SearchGroup runs a hybrid search across every source in a group. Results
// from all sources are pooled by raw distance; RRF is a per-source
// refinement only.
func (s *Service) SearchGroup(ctx context.Context, group string, sourceNames []string, query string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	if len(sourceNames) == 0 {
		return nil, fmt.Errorf("group %q has no sources", group)
	}

	queryVec, cacheHit, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// Spread the fetch budget across the group
	perSource := (opts.Limit*3+len(sourceNames)-1)/len(sourceNames) + 2

	// Every source runs its two legs concurrently; hits land in per-source
	// slots so the pooled order stays deterministic.
	hitsBySource := make([][]storage.ChunkHit, len(sourceNames))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range sourceNames {
		g.Go(func() error {
			filters := storage.SearchFilters{Source: name, Limit: perSource}
			vectorHits, lexicalHits, _, err := s.runLegs(gctx, queryVec, query, filters)
			if err != nil {
				return err
			}
			hitsBySource[i] = append(vectorHits, lexicalHits...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var allHits []storage.ChunkHit
	for _, hits := range hitsBySource {
		allHits = append(allHits, hits...)
	}

	sort.SliceStable(allHits, func(i, j int) bool {
		return allHits[i].Distance < allHits[j].Distance
	})

	result, err := s.materialize(ctx, allHits, opts)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("group", group).
		Str("query", query).
		Bool("cache_hit", cacheHit).
		Int("sources", len(sourceNames)).
		Dur("total", time.Since(start)).
		Int("documents", len(result.Documents)).
		Bool("truncated", result.Truncated).
		Msg("group search")
	return result, nil
}

// embedQuery resolves the query embedding through the cache.
func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, bool, error) {
	if vec, ok := s.cache.Get(query); ok {
		return vec, true, nil
	}
	vec, err := embedder.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, false, fmt.Errorf("failed to embed query: %w", err)
	}
	s.cache.Set(query, vec)
	return vec, false, nil
}

type legTimings struct {
	vector  time.Duration
	lexical time.Duration
}

// runLegs executes the vector and lexical searches in parallel.
func (s *Service) runLegs(ctx context.Context, queryVec []float32, query string, filters storage.SearchFilters) ([]storage.ChunkHit, []storage.ChunkHit, legTimings, error) {
	var vectorHits, lexicalHits []storage.ChunkHit
	var timings legTimings

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		hits, err := s.store.VectorSearch(gctx, queryVec, filters)
		timings.vector = time.Since(start)
		if err != nil {
			return fmt.Errorf("vector search failed: %w", err)
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		hits, err := s.store.LexicalSearch(gctx, query, filters)
		timings.lexical = time.Since(start)
		if err != nil {
			return fmt.Errorf("lexical search failed: %w", err)
		}
		lexicalHits = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, timings, err
	}
	return vectorHits, lexicalHits, timings, nil
}

// rrfKey identifies a logical chunk across legs.
func rrfKey(hit storage.ChunkHit) string {
	prefix := hit.Content
	if len(prefix) > rrfKeyChunkPrefix {
		prefix = prefix[:rrfKeyChunkPrefix]
	}
	return hit.URL + "\x00" + prefix
}

// fuseRRF combines the two legs with Reciprocal Rank Fusion. An empty
// lexical leg falls back to pure vector order. The reported distance is
// 1 − score so smaller still means better. Ties break by vector rank,
// keeping the fusion deterministic.
func fuseRRF(vectorHits, lexicalHits []storage.ChunkHit, limit int) []storage.ChunkHit {
	if len(lexicalHits) == 0 {
		if len(vectorHits) > limit {
			return vectorHits[:limit]
		}
		return vectorHits
	}

	type fusion struct {
		hit        storage.ChunkHit
		score      float64
		vectorRank int
	}
	fused := make(map[string]*fusion)

	addLeg := func(hits []storage.ChunkHit, isVector bool) {
		for rank, hit := range hits {
			key := rrfKey(hit)
			f, ok := fused[key]
			if !ok {
				f = &fusion{hit: hit, vectorRank: len(vectorHits) + len(lexicalHits)}
				fused[key] = f
			}
			f.score += 1.0 / float64(rrfK+rank+1)
			if isVector && rank < f.vectorRank {
				f.vectorRank = rank
			}
		}
	}
	addLeg(vectorHits, true)
	addLeg(lexicalHits, false)

	ranked := make([]*fusion, 0, len(fused))
	for _, f := range fused {
		ranked = append(ranked, f)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].vectorRank < ranked[j].vectorRank
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]storage.ChunkHit, len(ranked))
	for i, f := range ranked {
		hit := f.hit
		hit.Distance = 1 - f.score
		out[i] = hit
	}
	return out
}

// materialize turns ranked chunk hits into a bounded document list:
// deduplicate to the first Limit distinct documents, fetch and clean them,
// and admit them in rank order against the character budget. A document
// that doesn't fit is truncated to the remaining budget and ends the list.
func (s *Service) materialize(ctx context.Context, hits []storage.ChunkHit, opts Options) (*Result, error) {
	docIDs := make([]int64, 0, opts.Limit)
	seen := make(map[int64]bool)
	for _, hit := range hits {
		if seen[hit.DocumentID] {
			continue
		}
		seen[hit.DocumentID] = true
		docIDs = append(docIDs, hit.DocumentID)
		if len(docIDs) == opts.Limit {
			break
		}
	}

	docs, err := s.store.GetDocumentsByIDs(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	byID := make(map[int64]*storage.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	result := &Result{Documents: []ResultDocument{}}
	for _, id := range docIDs {
		doc, ok := byID[id]
		if !ok {
			continue
		}

		content := cleaner.Clean(doc.Content)
		remaining := opts.MaxTotalChars - result.TotalChars
		if len(content) > remaining {
			// Leave room for the truncation marker Truncate appends
			const markerLen = len("\n\n[Content truncated...]")
			if remaining <= markerLen {
				result.Truncated = true
				break
			}
			content = cleaner.Truncate(content, remaining-markerLen)
			if len(content) > remaining {
				result.Truncated = true
				break
			}
			result.Documents = append(result.Documents, ResultDocument{
				Title: doc.Title, URL: doc.URL, Content: content,
			})
			result.TotalChars += len(content)
			result.Truncated = true
			break
		}

		result.Documents = append(result.Documents, ResultDocument{
			Title: doc.Title, URL: doc.URL, Content: content,
		})
		result.TotalChars += len(content)
	}

	return result, nil
}
