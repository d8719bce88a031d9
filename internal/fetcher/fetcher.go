// Package fetcher obtains documentation pages for a source, either by
// walking a link-manifest outline (llms.txt style) or by orchestrating an
// asynchronous web crawl.
package fetcher

import (
	"context"
	"net/url"
	"strings"
)

// FetchedDocument is the common output shape of both fetchers, one page of
// documentation ready for ingestion.
type FetchedDocument struct {
	URL      string
	Title    string
	Content  string
	Path     string
	Metadata map[string]string
}

// Fetcher retrieves all documents for a source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]FetchedDocument, error)
}

// PathFromURL derives a document path from its URL: the URL path with the
// leading slash and a trailing ".md" stripped. An empty result maps to
// "index".
func PathFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "index"
	}
	return normalizePath(u.Path)
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, ".md")
	if p == "" {
		return "index"
	}
	return p
}
