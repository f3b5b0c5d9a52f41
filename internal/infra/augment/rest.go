package augment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veriscope/veriscope/internal/domain/catalog"
)

// maxRestBody caps how much endpoint output gets forwarded as context.
const maxRestBody = 64 << 10

type RestAPIClient struct {
	httpClient *http.Client
}

func NewRestAPIClient() *RestAPIClient {
	return &RestAPIClient{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// Lookup fetches the configured endpoint and forwards the body as context.
func (c *RestAPIClient) Lookup(ctx context.Context, agent *catalog.Agent, _ string) (string, error) {
	if agent.APIEndpoint == "" {
		return "", fmt.Errorf("agent %s: no api endpoint configured", agent.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, agent.APIEndpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", agent.APIEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("calling %s: unexpected status %s", agent.APIEndpoint, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRestBody))
	if err != nil {
		return "", fmt.Errorf("reading response from %s: %w", agent.APIEndpoint, err)
	}
	return fmt.Sprintf("Response from %s:\n%s", agent.APIEndpoint, body), nil
}
