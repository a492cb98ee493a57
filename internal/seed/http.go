package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrStatus is returned when the service answers with an unexpected status.
var ErrStatus = errors.New("unexpected status")

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// apiError mirrors the service error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends body as JSON and decodes a response with status want into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, want int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode != want {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Code != "" {
			return fmt.Errorf("%s %s: %w %d: %s: %s", method, path, ErrStatus, resp.StatusCode, e.Code, e.Message)
		}
		return fmt.Errorf("%s %s: %w %d", method, path, ErrStatus, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
}

func (c *HTTPClient) putSettings(ctx context.Context, team string, s Settings) error {
	return c.do(ctx, http.MethodPut, "/teams/"+team+"/settings", s, nil, http.StatusOK)
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
}

// postRecords uploads records in batches and returns how many were accepted.
func (c *HTTPClient) postRecords(ctx context.Context, team string, records []Record) (int, error) {
	accepted := 0
	for start := 0; start < len(records); start += recordBatchSize {
		end := min(start+recordBatchSize, len(records))
		var res ingestResponse
		body := map[string][]Record{"records": records[start:end]}
		if err := c.do(ctx, http.MethodPost, "/teams/"+team+"/attendance", body, &res, http.StatusOK); err != nil {
			return accepted, err
		}
		accepted += res.Accepted
	}
	return accepted, nil
}

func (c *HTTPClient) postAwards(ctx context.Context, team string, awards []Award) (int, error) {
	if len(awards) == 0 {
		return 0, nil
	}
	var res ingestResponse
	body := map[string][]Award{"awards": awards}
	if err := c.do(ctx, http.MethodPost, "/teams/"+team+"/mvp-awards", body, &res, http.StatusOK); err != nil {
		return 0, err
	}
	return res.Accepted, nil
}

func (c *HTTPClient) recompute(ctx context.Context, team string) (RunSummary, error) {
	var run RunSummary
	err := c.do(ctx, http.MethodPost, "/teams/"+team+"/recompute?sync=true", nil, &run, http.StatusOK)
	return run, err
}

func (c *HTTPClient) leaderboard(ctx context.Context, team string, limit int) (Leaderboard, error) {
	var lb Leaderboard
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/teams/%s/leaderboard?limit=%d", team, limit), nil, &lb, http.StatusOK)
	return lb, err
}
