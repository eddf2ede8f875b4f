package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medistock/device/internal/observability"
)

// HTTPBackend talks to a PostgREST-style endpoint: one resource per table,
// equality filters as query parameters, upserts via Prefer headers.
type HTTPBackend struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	client       *http.Client
}

// NewHTTPBackend creates an HTTP backend client
func NewHTTPBackend(baseURL, apiKey, apiKeyHeader string) *HTTPBackend {
	if apiKeyHeader == "" {
		apiKeyHeader = "apikey"
	}
	return &HTTPBackend{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		apiKeyHeader: apiKeyHeader,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Select returns rows of a table, optionally filtered by field equality
func (b *HTTPBackend) Select(ctx context.Context, table string, filters map[string]string) ([]map[string]any, error) {
	query := url.Values{}
	for field, value := range filters {
		query.Set(field, "eq."+value)
	}

	var rows []map[string]any
	if err := b.do(ctx, http.MethodGet, table, query, nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetByID returns one row, or ErrNotFound
func (b *HTTPBackend) GetByID(ctx context.Context, table, id string) (map[string]any, error) {
	rows, err := b.Select(ctx, table, map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Upsert inserts or replaces a row keyed by its id
func (b *HTTPBackend) Upsert(ctx context.Context, table string, record map[string]any) error {
	headers := map[string]string{"Prefer": "resolution=merge-duplicates"}
	return b.do(ctx, http.MethodPost, table, nil, headers, record, nil)
}

// Update modifies an existing row by id
func (b *HTTPBackend) Update(ctx context.Context, table, id string, record map[string]any) error {
	query := url.Values{}
	query.Set("id", "eq."+id)
	return b.do(ctx, http.MethodPatch, table, query, nil, record, nil)
}

// Delete removes a row by id
func (b *HTTPBackend) Delete(ctx context.Context, table, id string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)
	err := b.do(ctx, http.MethodDelete, table, query, nil, nil, nil)
	if err == ErrNotFound {
		return nil
	}
	return err
}

// Ping checks reachability of the endpoint
func (b *HTTPBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.baseURL+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	b.setAuth(req)
	resp, err := b.client.Do(req)
	if err != nil {
		return &TransientError{Op: "ping", Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &TransientError{Op: "ping", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

func (b *HTTPBackend) do(ctx context.Context, method, table string, query url.Values, headers map[string]string, body any, out any) (err error) {
	ctx, span := observability.StartRemoteSpan(ctx, method, table)
	defer func() {
		if err != nil {
			observability.RecordError(span, err)
		} else {
			observability.SetSuccess(span)
		}
		span.End()
	}()

	endpoint := b.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", table, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	b.setAuth(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	op := method + " " + table
	resp, err := b.client.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return &TransientError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s failed: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}

func (b *HTTPBackend) setAuth(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set(b.apiKeyHeader, b.apiKey)
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}
