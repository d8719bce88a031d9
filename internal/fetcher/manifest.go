package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"
)

// manifestEntry is one parsed link from the manifest outline.
type manifestEntry struct {
	Title       string
	URL         string
	Description string
	Section     string
	Optional    bool
}

var (
	sectionRe = regexp.MustCompile(`^##\s+(.+)$`)
	topRe     = regexp.MustCompile(`^#\s+(.+)$`)
	entryRe   = regexp.MustCompile(`^\s*[-*+]\s*\[([^\]]+)\]\(([^)]+)\)\s*(?::\s*(.*))?$`)
)

// ManifestFetcher fetches every document linked from an llms.txt-style
// manifest.
type ManifestFetcher struct {
	manifestURL     string
	includeOptional bool
	httpClient      *http.Client
	limiter         *rate.Limiter
}

// NewManifestFetcher creates a fetcher for the manifest at manifestURL.
func NewManifestFetcher(manifestURL string, includeOptional bool) *ManifestFetcher {
	return &ManifestFetcher{
		manifestURL:     manifestURL,
		includeOptional: includeOptional,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// Fetch downloads the manifest, parses its outline, and fetches each linked
// document. Per-entry failures are logged and skipped.
func (f *ManifestFetcher) Fetch(ctx context.Context) ([]FetchedDocument, error) {
	manifest, err := f.get(ctx, f.manifestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest %s: %w", f.manifestURL, err)
	}

	base, err := url.Parse(f.manifestURL)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest URL %s: %w", f.manifestURL, err)
	}

	entries := parseManifest(manifest, base)
	log.Info().
		Str("manifest", f.manifestURL).
		Int("entries", len(entries)).
		Msg("parsed link manifest")

	docs := make([]FetchedDocument, 0, len(entries))
	for _, entry := range entries {
		if entry.Optional && !f.includeOptional {
			continue
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		content, finalURL, err := f.getWithMarkdownFallback(ctx, entry.URL)
		if err != nil {
			log.Warn().
				Str("url", entry.URL).
				Str("title", entry.Title).
				Err(err).
				Msg("skipping manifest entry")
			continue
		}

		docs = append(docs, FetchedDocument{
			URL:     finalURL,
			Title:   entry.Title,
			Content: content,
			Path:    PathFromURL(finalURL),
			Metadata: map[string]string{
				"section":     entry.Section,
				"description": entry.Description,
			},
		})
	}

	return docs, nil
}

// parseManifest walks the outline line by line. "## X" headers open
// sections; a section whose name contains "optional" marks its entries
// optional. A lone "# X" header supplies the default section only when no
// "##" section has been seen yet.
func parseManifest(content string, base *url.URL) []manifestEntry {
	var entries []manifestEntry
	section := ""
	sectionSet := false
	optional := false

	for _, line := range strings.Split(content, "\n") {
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			section = strings.TrimSpace(m[1])
			sectionSet = true
			optional = strings.Contains(strings.ToLower(section), "optional")
			continue
		}
		if m := topRe.FindStringSubmatch(line); m != nil {
			if !sectionSet {
				section = strings.TrimSpace(m[1])
			}
			continue
		}
		if m := entryRe.FindStringSubmatch(line); m != nil {
			entries = append(entries, manifestEntry{
				Title:       strings.TrimSpace(m[1]),
				URL:         resolveURL(base, strings.TrimSpace(m[2])),
				Description: strings.TrimSpace(m[3]),
				Section:     section,
				Optional:    optional,
			})
		}
	}
	return entries
}

// resolveURL makes scheme-less links absolute: absolute paths resolve
// against the manifest origin, relative ones against its full URL.
func resolveURL(base *url.URL, raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if ref.IsAbs() {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// getWithMarkdownFallback fetches a URL; on a non-2xx response it retries
// once with ".md" appended unless the URL already ends in ".md". Returns the
// content and the URL that actually served it.
func (f *ManifestFetcher) getWithMarkdownFallback(ctx context.Context, rawURL string) (string, string, error) {
	content, err := f.get(ctx, rawURL)
	if err == nil {
		return content, rawURL, nil
	}
	if strings.HasSuffix(rawURL, ".md") {
		return "", "", err
	}

	mdURL := rawURL + ".md"
	content, mdErr := f.get(ctx, mdURL)
	if mdErr != nil {
		return "", "", err // report the original failure
	}
	return content, mdURL, nil
}

func (f *ManifestFetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
