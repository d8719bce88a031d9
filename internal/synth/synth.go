// Package synth derives short human-readable source descriptions from
// document titles using a chat completion model, with a deterministic
// fallback when no model is available or the call fails.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phuslu/log"
)

const (
	defaultChatModel = "gpt-4o-mini"
	chatURL          = "https://api.openai.com/v1/chat/completions"

	// maxTitles caps how many document titles go into the prompt.
	maxTitles = 30
)

// Describer produces a one-line description of a documentation source from
// its base URL and a sample of its document titles.
type Describer interface {
	Describe(ctx context.Context, sourceName, baseURL string, titles []string) string
}

// OpenAIDescriber asks a chat model to summarize the titles. Failures fall
// back to a generated default so ingestion never blocks on this.
type OpenAIDescriber struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIDescriber creates a describer. An empty model uses the default.
func NewOpenAIDescriber(apiKey, model string) *OpenAIDescriber {
	if model == "" {
		model = defaultChatModel
	}
	return &OpenAIDescriber{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (d *OpenAIDescriber) Describe(ctx context.Context, sourceName, baseURL string, titles []string) string {
	if d.apiKey == "" {
		return FallbackDescription(sourceName, titles)
	}

	desc, err := d.callAPI(ctx, sourceName, baseURL, titles)
	if err != nil || desc == "" {
		log.Warn().Str("source", sourceName).Err(err).Msg("description synthesis failed, using fallback")
		return FallbackDescription(sourceName, titles)
	}
	return desc
}

func (d *OpenAIDescriber) callAPI(ctx context.Context, sourceName, baseURL string, titles []string) (string, error) {
	if len(titles) > maxTitles {
		titles = titles[:maxTitles]
	}

	prompt := fmt.Sprintf(
		"These are page titles from the %q documentation at %s:\n%s\n\nWrite one sentence (under 25 words) describing what this documentation covers. Respond with the sentence only.",
		sourceName, baseURL, strings.Join(titles, "\n"))

	reqBody := map[string]interface{}{
		"model": d.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  60,
		"temperature": 0.2,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", chatURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", err
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}

// FallbackDescription builds a deterministic description from the source
// name and a few titles.
func FallbackDescription(sourceName string, titles []string) string {
	if len(titles) == 0 {
		return fmt.Sprintf("Documentation for %s", sourceName)
	}
	sample := titles
	if len(sample) > 3 {
		sample = sample[:3]
	}
	return fmt.Sprintf("Documentation for %s covering %s", sourceName, strings.Join(sample, ", "))
}
