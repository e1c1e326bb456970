package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client performs web lookups through a Tavily-compatible search API.
// Without an API key it degrades to simulated results so agents can run
// offline; the simulated text is clearly labeled.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a search client. endpoint defaults to the Tavily API.
func NewClient(endpoint, apiKey string, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = "https://api.tavily.com/search"
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs the query and returns a plain-text result block.
func (c *Client) Search(ctx context.Context, query string, maxResults int) (string, error) {
	if query == "" {
		return "", fmt.Errorf("web search: empty query")
	}
	if maxResults <= 0 || maxResults > 10 {
		maxResults = 5
	}

	if c.apiKey == "" {
		c.logger.Debug("web search not configured, returning simulated results",
			zap.String("query", query))
		return fmt.Sprintf("Simulated search results for %q. Configure a search API key for live results.", query), nil
	}

	body, err := json.Marshal(searchRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: maxResults,
	})
	if err != nil {
		return "", fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("search API error %d: %s", resp.StatusCode, string(respBody))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	var out strings.Builder
	if sr.Answer != "" {
		out.WriteString(sr.Answer)
		out.WriteString("\n\n")
	}
	for i, r := range sr.Results {
		fmt.Fprintf(&out, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	if out.Len() == 0 {
		return fmt.Sprintf("No search results for %q.", query), nil
	}
	return out.String(), nil
}
