package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aptify/knowledge-rag/internal/agent/model"
)

const (
	DefaultTavilyEndpoint = "https://api.tavily.com/search"
	DefaultMaxResults     = 3
	maxRateLimitRetries   = 3
)

// Tavily is a model.WebSearch provider over the Tavily search API. Rate
// limit handling (429 backoff) belongs to this provider; the workflow
// itself never retries a failed search.
type Tavily struct {
	APIKey string
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth      string
	MaxResults int
	Endpoint   string

	client       *http.Client
	backoffStart time.Duration
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey, depth string, maxResults int, timeout time.Duration) *Tavily {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewTavilyWithClient(apiKey, depth, maxResults, &http.Client{Timeout: timeout})
}

// NewTavilyWithClient constructs a Tavily search provider using the supplied HTTP client.
func NewTavilyWithClient(apiKey, depth string, maxResults int, client *http.Client) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Tavily{
		APIKey:       apiKey,
		Depth:        depth,
		MaxResults:   maxResults,
		Endpoint:     DefaultTavilyEndpoint,
		client:       client,
		backoffStart: time.Second,
	}
}

// Query posts a search to Tavily. A 429 is retried a few times with
// doubling backoff; any other non-200 status is an error.
func (t *Tavily) Query(ctx context.Context, query string) ([]model.SearchResult, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.APIKey,
		"search_depth": t.Depth,
		"max_results":  t.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := t.backoffStart
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tavily: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRateLimitRetries {
			break
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily decode: %w", err)
	}

	results := make([]model.SearchResult, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, model.SearchResult{Title: r.Title, URL: r.URL, Content: r.Content})
		if len(results) >= t.MaxResults {
			break
		}
	}
	return results, nil
}
