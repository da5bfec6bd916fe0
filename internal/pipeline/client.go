package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"papertrade/internal/uuid"
)

// PriceEntry is a single price submitted to the pipeline API.
type PriceEntry struct {
	Symbol     string `json:"symbol"`
	Price      int64  `json:"price"`
	RecordedAt string `json:"recorded_at"` // RFC3339
}

// APIClient communicates with the paper trading pipeline API. Every request
// of one client carries the same X-Request-ID, so the API's request log ties
// a run's calls together.
type APIClient struct {
	baseURL    string
	apiKey     string
	runID      string
	httpClient *http.Client
}

// NewAPIClient creates a new pipeline API client for one run.
func NewAPIClient(baseURL, apiKey string, httpClient *http.Client) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		runID:      uuid.New(),
		httpClient: httpClient,
	}
}

// RunID is the request id sent with every call.
func (c *APIClient) RunID() string { return c.runID }

// TrackedSymbols fetches the symbols that are held or have a pending order.
func (c *APIClient) TrackedSymbols(ctx context.Context) ([]string, error) {
	var result struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/pipeline/symbols", nil, &result, "fetching symbols"); err != nil {
		return nil, err
	}
	return result.Symbols, nil
}

// RecordPrices submits price entries and returns the count recorded.
func (c *APIClient) RecordPrices(ctx context.Context, prices []PriceEntry) (int, error) {
	body := struct {
		Prices []PriceEntry `json:"prices"`
	}{Prices: prices}

	var result struct {
		PricesRecorded int `json:"prices_recorded"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/pipeline/prices", body, &result, "recording prices"); err != nil {
		return 0, err
	}
	return result.PricesRecorded, nil
}

// ScanTriggers runs one trigger scan and returns the number of orders executed.
func (c *APIClient) ScanTriggers(ctx context.Context) (int, error) {
	var result struct {
		Executed int `json:"executed"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/pipeline/triggers/scan", nil, &result, "scanning triggers"); err != nil {
		return 0, err
	}
	return result.Executed, nil
}

// ComputeSnapshots triggers portfolio snapshot computation at recordedAt and
// returns the count recorded.
func (c *APIClient) ComputeSnapshots(ctx context.Context, recordedAt time.Time) (int, error) {
	body := struct {
		RecordedAt string `json:"recorded_at"`
	}{RecordedAt: recordedAt.UTC().Format(time.RFC3339)}

	var result struct {
		SnapshotsRecorded int `json:"snapshots_recorded"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/pipeline/snapshots", body, &result, "computing snapshots"); err != nil {
		return 0, err
	}
	return result.SnapshotsRecorded, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any, action string) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", action, err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Request-ID", c.runID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", action, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", action, err)
	}
	return nil
}
