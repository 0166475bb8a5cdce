package scribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenClient fetches single-use scribe tokens from the local token
// endpoint. The token itself is opaque; it only ever travels to the
// scribe service as a query parameter.
type TokenClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewTokenClient creates a token client for the given endpoint URL.
func NewTokenClient(endpoint string) *TokenClient {
	return &TokenClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch retrieves a token. Any non-2xx response is a hard failure for
// the recording-start flow.
func (c *TokenClient) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}
	return payload.Token, nil
}
