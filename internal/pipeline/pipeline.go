// Package pipeline drives ingestion: fetch a source's documents, skip
// unchanged ones by content hash, chunk and embed the rest, and persist
// everything with resumable progress tracking.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/dnys1/mcp-docs/internal/chunker"
	"github.com/dnys1/mcp-docs/internal/embedder"
	"github.com/dnys1/mcp-docs/internal/fetcher"
	"github.com/dnys1/mcp-docs/internal/storage"
	"github.com/dnys1/mcp-docs/internal/synth"
)

// Options controls a single ingestion run.
type Options struct {
	// Resume picks up an interrupted run, skipping documents up to and
	// including the last processed URL.
	Resume bool
	// DryRun fetches and reports counts without writing anything.
	DryRun bool
}

// DocSummary is one document's line in a dry-run report.
type DocSummary struct {
	URL   string
	Title string
	Size  int
}

// DryRunResult reports what a real run would ingest.
type DryRunResult struct {
	DocumentCount        int
	TotalContentSize     int
	EstimatedTotalChunks int
	Documents            []DocSummary
}

// Result summarizes a completed ingestion run.
type Result struct {
	Processed int
	Skipped   int
	Failed    int
}

// FetcherFactory builds the fetcher for a source. cachedURLs carries
// already-stored document URLs for crawl exclusion.
type FetcherFactory func(src *storage.Source, cachedURLs []string) fetcher.Fetcher

// Pipeline ingests sources into the store.
type Pipeline struct {
	store      storage.Store
	embedder   embedder.Embedder
	describer  synth.Describer
	newFetcher FetcherFactory
	chunkOpts  chunker.Options
	streamOpts embedder.StreamOptions
}

// New creates a pipeline. The fetcher factory is injected so ingestion
// logic can be exercised without the network.
func New(store storage.Store, emb embedder.Embedder, describer synth.Describer, newFetcher FetcherFactory) *Pipeline {
	return &Pipeline{
		store:      store,
		embedder:   emb,
		describer:  describer,
		newFetcher: newFetcher,
	}
}

// Report is what an ingestion run produced: counters for a real run, or a
// dry-run breakdown.
type Report struct {
	Result
	DryRun *DryRunResult
}

// Ingest runs the full pipeline for one source. With DryRun set the report
// carries the breakdown and no writes occur.
func (p *Pipeline) Ingest(ctx context.Context, src *storage.Source, opts Options) (*Report, error) {
	runID := uuid.NewString()
	logger := log.DefaultLogger
	logger.Context = log.NewContext(nil).
		Str("run_id", runID).
		Str("source", src.Name).
		Str("type", string(src.Type)).
		Value()

	cachedURLs, err := p.collectCachedURLs(ctx, src, opts)
	if err != nil {
		return nil, err
	}

	docs, err := p.newFetcher(src, cachedURLs).Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch failed for source %q: %w", src.Name, err)
	}
	logger.Info().Int("documents", len(docs)).Msg("fetched documents")

	if opts.DryRun {
		return &Report{DryRun: dryRunReport(docs)}, nil
	}

	if err := p.store.UpsertSource(ctx, src); err != nil {
		return nil, fmt.Errorf("failed to persist source %q: %w", src.Name, err)
	}

	p.ensureDescription(ctx, src, docs, &logger)

	progress, remaining := p.prepareProgress(ctx, src, docs, opts.Resume, &logger)

	result := p.processDocuments(ctx, src, remaining, progress, &logger)

	if err := p.store.TouchSourceIngested(ctx, src.ID); err != nil {
		logger.Warn().Err(err).Msg("failed to stamp last_ingested_at")
	}
	if progress != nil {
		if err := p.store.CompleteProgress(ctx, progress); err != nil {
			logger.Warn().Err(err).Msg("failed to complete progress row")
		}
	}

	logger.Info().
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("ingestion finished")
	return &Report{Result: result}, nil
}

// collectCachedURLs lists already-stored URLs for an existing web_crawl
// source so the crawler can skip them. Dry runs skip this: the report
// should cover the whole site.
func (p *Pipeline) collectCachedURLs(ctx context.Context, src *storage.Source, opts Options) ([]string, error) {
	if src.Type != storage.SourceTypeWebCrawl || opts.DryRun {
		return nil, nil
	}

	existing, err := p.store.GetSource(ctx, src.Name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.store.ListDocumentURLs(ctx, existing.ID)
}

func dryRunReport(docs []fetcher.FetchedDocument) *DryRunResult {
	result := &DryRunResult{
		DocumentCount: len(docs),
		Documents:     make([]DocSummary, 0, len(docs)),
	}
	for _, doc := range docs {
		size := len(doc.Content)
		result.TotalContentSize += size
		result.EstimatedTotalChunks += (size + 999) / 1000
		result.Documents = append(result.Documents, DocSummary{
			URL:   doc.URL,
			Title: doc.Title,
			Size:  size,
		})
	}
	return result
}

// ensureDescription derives and persists a description when the source has
// none. Failures here never block ingestion.
func (p *Pipeline) ensureDescription(ctx context.Context, src *storage.Source, docs []fetcher.FetchedDocument, logger *log.Logger) {
	if src.Description != "" || p.describer == nil {
		return
	}

	titles := make([]string, 0, len(docs))
	for _, doc := range docs {
		titles = append(titles, doc.Title)
	}

	desc := p.describer.Describe(ctx, src.Name, src.BaseURL, titles)
	if desc == "" {
		return
	}
	if err := p.store.UpdateSourceDescription(ctx, src.ID, desc); err != nil {
		logger.Warn().Err(err).Msg("failed to persist source description")
		return
	}
	src.Description = desc
}

// prepareProgress resumes an interrupted run or starts a new progress row,
// and trims the document list accordingly. Progress tracking is best-effort:
// on storage errors ingestion proceeds without resumability.
func (p *Pipeline) prepareProgress(ctx context.Context, src *storage.Source, docs []fetcher.FetchedDocument, resume bool, logger *log.Logger) (*storage.Progress, []fetcher.FetchedDocument) {
	if resume {
		progress, err := p.store.GetIncompleteProgress(ctx, src.ID)
		if err == nil {
			remaining := skipThroughURL(docs, progress.LastProcessedURL)
			logger.Info().
				Str("last_processed_url", progress.LastProcessedURL).
				Int("remaining", len(remaining)).
				Msg("resuming interrupted ingestion")
			progress.Total = len(docs)
			return progress, remaining
		}
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Err(err).Msg("failed to look up progress, starting fresh")
		}
	}

	progress, err := p.store.CreateProgress(ctx, src.ID, len(docs))
	if err != nil {
		logger.Warn().Err(err).Msg("progress tracking unavailable")
		return nil, docs
	}
	return progress, docs
}

// skipThroughURL drops documents up to and including lastURL. If lastURL is
// absent from the list the full list is returned.
func skipThroughURL(docs []fetcher.FetchedDocument, lastURL string) []fetcher.FetchedDocument {
	if lastURL == "" {
		return docs
	}
	for i, doc := range docs {
		if doc.URL == lastURL {
			return docs[i+1:]
		}
	}
	return docs
}

func (p *Pipeline) processDocuments(ctx context.Context, src *storage.Source, docs []fetcher.FetchedDocument, progress *storage.Progress, logger *log.Logger) Result {
	var result Result

	for _, doc := range docs {
		if err := p.processDocument(ctx, src, doc); err != nil {
			if errors.Is(err, errUnchanged) {
				result.Skipped++
				p.recordProgress(ctx, progress, doc.URL, func(pr *storage.Progress) { pr.Skipped++ }, logger)
				continue
			}

			result.Failed++
			logger.Warn().Str("url", doc.URL).Err(err).Msg("document failed")
			p.recordProgress(ctx, progress, doc.URL, func(pr *storage.Progress) {
				pr.Failed++
				pr.ErrorMessage = err.Error()
			}, logger)
			continue
		}

		result.Processed++
		p.recordProgress(ctx, progress, doc.URL, func(pr *storage.Progress) { pr.Processed++ }, logger)
	}

	return result
}

// errUnchanged marks a document whose content hash matches the stored row.
var errUnchanged = errors.New("document unchanged")

func (p *Pipeline) processDocument(ctx context.Context, src *storage.Source, doc fetcher.FetchedDocument) error {
	hash := contentHash(doc.Content)

	existing, err := p.store.GetDocumentByURL(ctx, src.ID, doc.URL)
	if err == nil && existing.ContentHash == hash {
		return errUnchanged
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	chunks := chunker.Chunk(doc.Content, p.chunkOpts)

	vectors, err := embedder.EmbedStream(ctx, p.embedder, chunks, p.streamOpts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	record := &storage.Document{
		SourceID:    src.ID,
		URL:         doc.URL,
		Title:       doc.Title,
		Path:        doc.Path,
		Content:     doc.Content,
		ContentHash: hash,
		Metadata:    doc.Metadata,
	}
	if err := p.store.UpsertDocument(ctx, record); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}

	for i, content := range chunks {
		chunk := &storage.Chunk{
			DocumentID: record.ID,
			ChunkIndex: i,
			Content:    content,
			Embedding:  vectors[i],
			TokenCount: estimateTokens(content),
		}
		if err := p.store.InsertChunk(ctx, chunk); err != nil {
			return fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
	}

	return nil
}

// recordProgress applies the counter update and writes the row back.
// Best-effort: failures are logged, never fatal.
func (p *Pipeline) recordProgress(ctx context.Context, progress *storage.Progress, url string, update func(*storage.Progress), logger *log.Logger) {
	if progress == nil {
		return
	}
	update(progress)
	progress.LastProcessedURL = url
	if err := p.store.UpdateProgress(ctx, progress); err != nil {
		logger.Warn().Err(err).Msg("failed to update progress")
	}
}

// contentHash returns the lowercase hex SHA-256 of content.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// estimateTokens approximates the provider's tokenizer at 4 chars/token.
func estimateTokens(content string) int {
	return (len(content) + 3) / 4
}
