package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/dnys1/mcp-docs/internal/cleaner"
)

// DefaultCrawlLimit bounds a crawl when the source doesn't specify one.
const DefaultCrawlLimit = 100

// pollInterval is the minimum delay between crawl status polls.
const pollInterval = 2 * time.Second

// Crawl job statuses reported by the crawler backend.
const (
	CrawlStatusScraping  = "scraping"
	CrawlStatusCompleted = "completed"
	CrawlStatusFailed    = "failed"
	CrawlStatusCancelled = "cancelled"
)

// CrawlPage is one page returned by the crawler.
type CrawlPage struct {
	URL      string
	Title    string
	Markdown string
}

// CrawlStatus is a snapshot of a running crawl job.
type CrawlStatus struct {
	Status    string
	Completed int
	Total     int
	Pages     []CrawlPage
}

// CrawlClient starts crawl jobs and reports their progress. The production
// implementation talks to a Firecrawl-compatible API.
type CrawlClient interface {
	StartCrawl(ctx context.Context, baseURL string, opts CrawlRequest) (jobID string, err error)
	GetStatus(ctx context.Context, jobID string) (*CrawlStatus, error)
}

// CrawlRequest configures a crawl job.
type CrawlRequest struct {
	Limit        int
	IncludePaths []string
	ExcludePaths []string
}

// CrawlOptions configures a CrawlFetcher run.
type CrawlOptions struct {
	Limit        int
	IncludePaths []string
	ExcludePaths []string
	// CachedURLs are documents the store already holds; same-host URLs are
	// converted to exclude patterns so the crawler skips them.
	CachedURLs []string
}

// CrawlFetcher drives an asynchronous crawl job to completion and shapes
// the result pages into FetchedDocuments.
type CrawlFetcher struct {
	baseURL string
	opts    CrawlOptions
	client  CrawlClient

	// sleep is swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCrawlFetcher creates a crawl fetcher for baseURL.
func NewCrawlFetcher(baseURL string, opts CrawlOptions, client CrawlClient) *CrawlFetcher {
	if opts.Limit <= 0 {
		opts.Limit = DefaultCrawlLimit
	}
	return &CrawlFetcher{
		baseURL: baseURL,
		opts:    opts,
		client:  client,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Fetch starts the crawl, polls until a terminal status, and transforms the
// pages. A failed or cancelled job is fatal for the source.
func (f *CrawlFetcher) Fetch(ctx context.Context) ([]FetchedDocument, error) {
	base, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %s: %w", f.baseURL, err)
	}

	excludes := append([]string{}, f.opts.ExcludePaths...)
	excludes = append(excludes, cachedURLsToExcludes(base, f.opts.CachedURLs)...)

	jobID, err := f.client.StartCrawl(ctx, f.baseURL, CrawlRequest{
		Limit:        f.opts.Limit,
		IncludePaths: f.opts.IncludePaths,
		ExcludePaths: excludes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start crawl of %s: %w", f.baseURL, err)
	}

	log.Info().
		Str("base_url", f.baseURL).
		Str("job_id", jobID).
		Int("limit", f.opts.Limit).
		Msg("crawl started")

	status, err := f.poll(ctx, jobID)
	if err != nil {
		return nil, err
	}

	docs := make([]FetchedDocument, 0, len(status.Pages))
	for _, page := range status.Pages {
		docs = append(docs, transformPage(base, page))
	}
	return docs, nil
}

func (f *CrawlFetcher) poll(ctx context.Context, jobID string) (*CrawlStatus, error) {
	lastCompleted := -1
	for {
		status, err := f.client.GetStatus(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll crawl %s: %w", jobID, err)
		}

		if status.Completed != lastCompleted {
			log.Info().
				Str("job_id", jobID).
				Int("completed", status.Completed).
				Int("total", status.Total).
				Msg("crawl progress")
			lastCompleted = status.Completed
		}

		switch status.Status {
		case CrawlStatusCompleted:
			return status, nil
		case CrawlStatusFailed, CrawlStatusCancelled:
			return nil, fmt.Errorf("crawl %s ended with status %s", jobID, status.Status)
		}

		if err := f.sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// cachedURLsToExcludes turns already-stored URLs on the crawl host into
// exclude path patterns. Off-host URLs are ignored.
func cachedURLsToExcludes(base *url.URL, cachedURLs []string) []string {
	excludes := make([]string, 0, len(cachedURLs))
	for _, raw := range cachedURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host != base.Host || u.Path == "" || u.Path == "/" {
			continue
		}
		excludes = append(excludes, u.Path)
	}
	return excludes
}

// titleSuffixes are boilerplate endings stripped from page titles. Both
// hyphen and en/em dash separators occur in the wild.
var titleSuffixes = []string{
	" – Documentation", " - Documentation", " — Documentation",
	" – Docs", " - Docs", " — Docs",
}

// transformPage shapes one crawled page into a FetchedDocument: resolve the
// title, strip boilerplate suffixes, clean the markdown, derive the path.
func transformPage(base *url.URL, page CrawlPage) FetchedDocument {
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = firstHeaderTitle(page.Markdown)
	}
	if title == "" {
		title = "Untitled"
	}
	for _, suffix := range titleSuffixes {
		title = strings.TrimSuffix(title, suffix)
	}

	return FetchedDocument{
		URL:     page.URL,
		Title:   strings.TrimSpace(title),
		Content: cleaner.Clean(page.Markdown),
		Path:    crawlPath(base, page.URL),
	}
}

// firstHeaderTitle returns the first "# " header line that isn't cookie
// boilerplate.
func firstHeaderTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "# ") {
			continue
		}
		title := strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		if strings.Contains(strings.ToLower(title), "cookie") {
			continue
		}
		if title != "" {
			return title
		}
	}
	return ""
}

// crawlPath derives a document path relative to the crawl base. Pages
// outside the base host keep their full pathname.
func crawlPath(base *url.URL, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "index"
	}
	if u.Host != base.Host {
		return normalizePath(u.Path)
	}
	p := strings.TrimPrefix(u.Path, strings.TrimSuffix(base.Path, "/"))
	return normalizePath(p)
}
