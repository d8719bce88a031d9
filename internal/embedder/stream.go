package embedder

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Streaming defaults
const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 5
)

// StreamOptions configures EmbedStream. Zero values use the defaults.
type StreamOptions struct {
	BatchSize   int
	Concurrency int
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// EmbedStream embeds a large input by partitioning it into batches and
// running up to Concurrency batches in parallel. Output order matches input
// order. Empty input returns an empty slice without touching the provider.
func EmbedStream(ctx context.Context, e Embedder, texts []string, opts StreamOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	opts = opts.withDefaults()

	type batch struct {
		start int
		texts []string
	}
	batches := make([]batch, 0, (len(texts)+opts.BatchSize-1)/opts.BatchSize)
	for start := 0; start < len(texts); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			vectors, err := e.EmbedBatch(gctx, b.texts)
			if err != nil {
				return err
			}
			copy(results[b.start:], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
