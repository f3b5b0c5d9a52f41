package tavily

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

const searchURL = "https://api.tavily.com/search"

type Client struct {
	apiKey     string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	IncludeAnswer string `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one web search and flattens the answer plus top results into
// prompt-ready text.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		IncludeAnswer: "advanced",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("tavily search: status %s: %s", resp.Status, raw)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("tavily search: decoding response: %w", err)
	}

	var b strings.Builder
	if sr.Answer != "" {
		fmt.Fprintf(&b, "Web search answer: %s\n", sr.Answer)
	}
	for i, r := range sr.Results {
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	return b.String(), nil
}
