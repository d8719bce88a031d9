package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultFirecrawlURL is the hosted Firecrawl API endpoint.
const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// FirecrawlClient implements CrawlClient against a Firecrawl-compatible
// crawl API.
type FirecrawlClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewFirecrawlClient creates a client. An empty apiURL uses the hosted
// endpoint; self-hosted deployments may run without a key.
func NewFirecrawlClient(apiURL, apiKey string) *FirecrawlClient {
	if apiURL == "" {
		apiURL = DefaultFirecrawlURL
	}
	return &FirecrawlClient{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *FirecrawlClient) StartCrawl(ctx context.Context, baseURL string, opts CrawlRequest) (string, error) {
	reqBody := map[string]interface{}{
		"url":   baseURL,
		"limit": opts.Limit,
		"scrapeOptions": map[string]interface{}{
			"formats":         []string{"markdown"},
			"onlyMainContent": true,
		},
	}
	if len(opts.IncludePaths) > 0 {
		reqBody["includePaths"] = opts.IncludePaths
	}
	if len(opts.ExcludePaths) > 0 {
		reqBody["excludePaths"] = opts.ExcludePaths
	}

	var resp struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, "POST", "/v1/crawl", reqBody, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.ID == "" {
		return "", fmt.Errorf("crawl rejected: %s", resp.Error)
	}
	return resp.ID, nil
}

func (c *FirecrawlClient) GetStatus(ctx context.Context, jobID string) (*CrawlStatus, error) {
	var resp struct {
		Status    string `json:"status"`
		Completed int    `json:"completed"`
		Total     int    `json:"total"`
		Data      []struct {
			Markdown string `json:"markdown"`
			Metadata struct {
				Title     string `json:"title"`
				SourceURL string `json:"sourceURL"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := c.do(ctx, "GET", "/v1/crawl/"+jobID, nil, &resp); err != nil {
		return nil, err
	}

	status := &CrawlStatus{
		Status:    resp.Status,
		Completed: resp.Completed,
		Total:     resp.Total,
	}
	for _, d := range resp.Data {
		status.Pages = append(status.Pages, CrawlPage{
			URL:      d.Metadata.SourceURL,
			Title:    d.Metadata.Title,
			Markdown: d.Markdown,
		})
	}
	return status, nil
}

func (c *FirecrawlClient) do(ctx context.Context, method, path string, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
