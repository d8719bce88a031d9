package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCrawlClient plays back a scripted sequence of statuses.
type fakeCrawlClient struct {
	startedURL  string
	startedOpts CrawlRequest
	statuses    []*CrawlStatus
	polls       int
}

func (f *fakeCrawlClient) StartCrawl(_ context.Context, baseURL string, opts CrawlRequest) (string, error) {
	f.startedURL = baseURL
	f.startedOpts = opts
	return "job-1", nil
}

func (f *fakeCrawlClient) GetStatus(_ context.Context, _ string) (*CrawlStatus, error) {
	idx := f.polls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.polls++
	return f.statuses[idx], nil
}

func newTestCrawlFetcher(baseURL string, opts CrawlOptions, client CrawlClient) *CrawlFetcher {
	f := NewCrawlFetcher(baseURL, opts, client)
	f.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func TestCrawlFetchPollsToCompletion(t *testing.T) {
	client := &fakeCrawlClient{statuses: []*CrawlStatus{
		{Status: CrawlStatusScraping, Completed: 1, Total: 2},
		{Status: CrawlStatusScraping, Completed: 2, Total: 2},
		{Status: CrawlStatusCompleted, Completed: 2, Total: 2, Pages: []CrawlPage{
			{URL: "https://docs.example.com/guide", Title: "Guide – Documentation", Markdown: "# Guide\n\nBody."},
			{URL: "https://docs.example.com/api", Markdown: "# API Reference\n\nEndpoints."},
		}},
	}}

	f := newTestCrawlFetcher("https://docs.example.com", CrawlOptions{Limit: 2}, client)
	docs, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Guide", docs[0].Title, "boilerplate title suffix is stripped")
	assert.Equal(t, "guide", docs[0].Path)
	assert.Contains(t, docs[0].Content, "Body.")

	// Missing title falls back to the first header line
	assert.Equal(t, "API Reference", docs[1].Title)
	assert.Equal(t, 3, client.polls)
}

func TestCrawlFetchTitleFallbacks(t *testing.T) {
	base := mustParse(t, "https://docs.example.com")

	doc := transformPage(base, CrawlPage{
		URL:      "https://docs.example.com/x",
		Markdown: "# We use cookies\n\n# Real Title\n\nbody",
	})
	assert.Equal(t, "Real Title", doc.Title, "cookie banners are not titles")

	doc = transformPage(base, CrawlPage{
		URL:      "https://docs.example.com/x",
		Markdown: "no headers at all",
	})
	assert.Equal(t, "Untitled", doc.Title)
}

func TestCrawlFetchCachedURLExclusion(t *testing.T) {
	client := &fakeCrawlClient{statuses: []*CrawlStatus{
		{Status: CrawlStatusCompleted},
	}}

	f := newTestCrawlFetcher("https://docs.example.com", CrawlOptions{
		ExcludePaths: []string{"/blog"},
		CachedURLs: []string{
			"https://docs.example.com/already/stored",
			"https://elsewhere.example.com/ignored", // off-host, dropped
			"https://docs.example.com/",             // root, dropped
		},
	}, client)

	_, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/blog", "/already/stored"}, client.startedOpts.ExcludePaths)
	assert.Equal(t, DefaultCrawlLimit, client.startedOpts.Limit)
}

func TestCrawlFetchFailedJobIsFatal(t *testing.T) {
	client := &fakeCrawlClient{statuses: []*CrawlStatus{
		{Status: CrawlStatusFailed},
	}}

	f := newTestCrawlFetcher("https://docs.example.com", CrawlOptions{}, client)
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestCrawlPathDerivation(t *testing.T) {
	base := mustParse(t, "https://docs.example.com/docs")

	assert.Equal(t, "guide", crawlPath(base, "https://docs.example.com/docs/guide"))
	assert.Equal(t, "index", crawlPath(base, "https://docs.example.com/docs"))
	// Out-of-host pages keep their full pathname
	assert.Equal(t, "other/page", crawlPath(base, "https://elsewhere.example.com/other/page"))
}
