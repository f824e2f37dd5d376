// Package analytics provides the client for the external analytics query
// endpoint, the source of lead, cost, forecast, and zone threshold data.
//
// The endpoint answers a raw query string with either an array-of-arrays
// (first row is the header) or an array of keyed records, depending on
// the assoc flag the caller sent. Both shapes are normalized into one
// typed Result right here at the boundary; nothing downstream branches
// on the wire shape.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"offerboard_backend/platform/config"
	"offerboard_backend/platform/logger"
	"offerboard_backend/platform/retry"
)

// Row is one normalized result record keyed by column name.
type Row map[string]any

// Result is the normalized query response.
type Result struct {
	Columns []string
	Rows    []Row
}

// Client talks to the analytics query endpoint with the shared retry
// policy. Transient upstream failures (5xx, timeout, network) are
// retried; shape errors are not.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	policy     retry.Policy
	log        *logger.Logger
}

// New creates an analytics client. The timeout applies per request, not
// per query including retries.
func New(cfg config.AnalyticsConfig, policy retry.Policy, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.GetAnalyticsBaseURL(),
		apiKey:     cfg.GetAnalyticsAPIKey(),
		policy:     policy,
		log:        log,
	}
}

type queryRequest struct {
	Query string `json:"query"`
	Assoc bool   `json:"assoc"`
}

// Query executes a raw query and returns the normalized result.
func (c *Client) Query(ctx context.Context, query string, assoc bool) (*Result, error) {
	var result *Result
	err := c.policy.Do(ctx, "analytics query", func(ctx context.Context) error {
		res, err := c.doQuery(ctx, query, assoc)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doQuery(ctx context.Context, query string, assoc bool) (*Result, error) {
	body, err := json.Marshal(queryRequest{Query: query, Assoc: assoc})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analytics endpoint: %w", &retry.StatusError{Status: resp.StatusCode})
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return normalize(raw)
}

// normalize converts either wire shape into a Result.
func normalize(raw []json.RawMessage) (*Result, error) {
	if len(raw) == 0 {
		return &Result{}, nil
	}

	var header []string
	if err := json.Unmarshal(raw[0], &header); err == nil {
		return normalizeArrays(header, raw[1:])
	}

	result := &Result{}
	for i, msg := range raw {
		var row Row
		if err := json.Unmarshal(msg, &row); err != nil {
			return nil, fmt.Errorf("record %d: unexpected result shape: %w", i, err)
		}
		if i == 0 {
			for col := range row {
				result.Columns = append(result.Columns, col)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func normalizeArrays(header []string, raw []json.RawMessage) (*Result, error) {
	result := &Result{Columns: header}
	for i, msg := range raw {
		var values []any
		if err := json.Unmarshal(msg, &values); err != nil {
			return nil, fmt.Errorf("row %d: unexpected result shape: %w", i, err)
		}
		if len(values) != len(header) {
			return nil, fmt.Errorf("row %d: %d values for %d columns", i, len(values), len(header))
		}
		row := make(Row, len(header))
		for j, col := range header {
			row[col] = values[j]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// String returns the named column as a string, empty when absent.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Float returns the named column as a float64, 0 when absent or non-numeric.
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Int returns the named column as an int, 0 when absent or non-numeric.
func (r Row) Int(col string) int {
	return int(r.Float(col))
}

// FloatPtr returns the named column as a *float64, nil when absent or null.
func (r Row) FloatPtr(col string) *float64 {
	if v, ok := r[col]; !ok || v == nil {
		return nil
	}
	f := r.Float(col)
	return &f
}
