// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coverage uploads test-coverage reports to an external
// reporting service.
package coverage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Client posts coverage reports to a fixed endpoint. The contract is a
// single attempt per report; retry policy belongs to the caller, and
// the pipeline contract specifies none.
type Client struct {
	endpoint string
	token    string
	httpc    *http.Client
}

// NewClient creates a Client for the given endpoint. token may be
// empty for services that identify uploads by source address.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload sends the report file, tagging it with the matrix entry it
// came from.
func (c *Client) Upload(ctx context.Context, reportPath, entryID string) error {
	f, err := os.Open(reportPath)
	if err != nil {
		return fmt.Errorf("opening report: %w", err)
	}
	defer func() { _ = f.Close() }()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parsing upload url: %w", err)
	}
	q := u.Query()
	q.Set("entry", entryID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), f)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.token != "" {
		req.Header.Set("X-Upload-Token", c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload rejected: %s: %s", resp.Status, string(body))
	}
	return nil
}
