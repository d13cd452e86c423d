// Package webhook fetches schedule records from a URL-addressable
// JSON endpoint.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/liveopshq/opscal/internal/ingest"
)

// NetworkError reports a failed webhook fetch. The store is never
// touched when one occurs.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("webhook fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client fetches webhook payloads.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a webhook client with a request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves url and decodes the payload into raw records.
// Transport and HTTP-status failures come back as *NetworkError;
// undecodable payloads come back as *ingest.ParseError.
func (c *Client) Fetch(ctx context.Context, url string) ([]ingest.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	return ingest.DecodePayload(body)
}
