// Package analysis is the HTTP client for the external analysis API.
// The API is a black box: one POST per capture, response body passed
// through verbatim.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meetscope/meetscope/internal/core"
)

type Client struct {
	url string
	hc  *http.Client
}

// New builds a client for the configured API address. An empty address
// is allowed here; it fails per-capture with core.ErrNoAnalysisURL so
// a misconfigured deployment still serves webhooks.
func New(url string) *Client {
	return &Client{
		url: url,
		hc:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Analyze(ctx context.Context, req core.AnalysisRequest) (json.RawMessage, error) {
	if c.url == "" {
		return nil, core.ErrNoAnalysisURL
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode analysis request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call analysis API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("analysis API returned %s", resp.Status)
	}
	return json.RawMessage(data), nil
}
