// Package embedder turns text into vector embeddings via a remote provider,
// with batching, bounded concurrency, and retry on transient failures.
package embedder

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrEmptyText         = errors.New("text cannot be empty")
)

// Embedder generates embeddings for batches of text.
type Embedder interface {
	// EmbedBatch embeds all texts in one provider call, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for this provider/model.
	Dimension() int

	// Provider returns the provider name.
	Provider() string

	// Model returns the model name.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// EmbedQuery embeds a single query string.
func EmbedQuery(ctx context.Context, e Embedder, query string) ([]float32, error) {
	if query == "" {
		return nil, ErrEmptyText
	}
	vectors, err := e.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, ErrProviderFailed
	}
	return vectors[0], nil
}
