// Package vector provides the k-NN search adapter over a Qdrant-compatible
// REST API, plus the ephemeral collection used for short-term Q/A recall.
package vector

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

// ErrSearchFailed wraps every search failure. Retrieval treats it as
// non-fatal: it logs and proceeds with whatever it has accumulated.
var ErrSearchFailed = errors.New("vector: search failed")

const defaultTimeout = 15 * time.Second

// Point is one scored hit returned by a search.
type Point struct {
	// ID is unique within a collection.
	ID uint64
	// Score is the similarity score reported by the store.
	Score float32
	// Text is the passage stored under the "text" payload key.
	Text string
}

// UpsertPoint is one point to write into a collection.
type UpsertPoint struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

// Config holds connection details for the vector store.
type Config struct {
	// BaseURL is the store's REST endpoint, e.g. "http://localhost:6333".
	BaseURL string
	// APIKey is sent as the api-key header when non-empty.
	APIKey string
	// Timeout is the per-request HTTP timeout. Defaults to 15 s.
	Timeout time.Duration
}

// Client is a minimal REST client to a Qdrant-compatible vector store.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a vector store client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Search runs a k-NN query against the named collection and returns the
// scored hits with their textual payload. Hits without a numeric ID or a
// "text" payload entry are dropped.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":       vec,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      json.Number    `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", collection), req, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSearchFailed, collection, err)
	}

	points := make([]Point, 0, len(resp.Result))
	for _, hit := range resp.Result {
		id, err := hit.ID.Int64()
		if err != nil || id < 0 {
			continue
		}
		text, _ := hit.Payload["text"].(string)
		if text == "" {
			continue
		}
		points = append(points, Point{ID: uint64(id), Score: hit.Score, Text: text})
	}
	return points, nil
}

// Upsert writes points into the named collection, waiting for the write to
// be applied.
func (c *Client) Upsert(ctx context.Context, collection string, points []UpsertPoint) error {
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, len(points))
	for i, p := range points {
		body[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", collection),
		map[string]any{"points": body}, nil)
	if err != nil {
		return fmt.Errorf("vector: upsert into %s: %w", collection, err)
	}
	return nil
}

// CreateCollection creates the named collection with the given vector
// dimension. Creating an existing collection with the same schema is a
// no-op on Qdrant's side.
func (c *Client) CreateCollection(ctx context.Context, name string, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := c.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return fmt.Errorf("vector: create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection drops the named collection.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil); err != nil {
		return fmt.Errorf("vector: delete collection %s: %w", name, err)
	}
	return nil
}

// Count returns the exact number of points in the named collection.
func (c *Client) Count(ctx context.Context, name string) (uint64, error) {
	var resp struct {
		Result struct {
			Count uint64 `json:"count"`
		} `json:"result"`
	}
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/count", name),
		map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, fmt.Errorf("vector: count %s: %w", name, err)
	}
	return resp.Result.Count, nil
}

// do issues one JSON request and decodes the response into out (when
// non-nil). Non-2xx statuses are errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
