// Package embed wraps the external embedding service behind a small client
// that vectorizes one or many strings.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bdobrica/Kotae/common/redact"
	"github.com/bdobrica/Kotae/common/retry"
)

// ErrUnavailable is returned when the embedding service yields no vectors
// or keeps failing after the internal retries are exhausted.
var ErrUnavailable = errors.New("embed: embedding service unavailable")

// errTransient marks failures worth retrying (network, 429, 5xx).
var errTransient = errors.New("embed: transient failure")

const (
	defaultModel    = "text-embedding-3-small"
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
)

// Config configures the embeddings client.
type Config struct {
	// APIKey is the bearer token for authentication.
	APIKey string
	// BaseURL is the OpenAI-compatible embeddings endpoint base.
	BaseURL string
	// Model is the embedding model. Defaults to text-embedding-3-small.
	Model string
	// Timeout is the per-request HTTP timeout. Defaults to 30 s.
	Timeout time.Duration
	// Attempts is the total number of tries per call, including the first.
	// Defaults to 3.
	Attempts int
	// Backoff is the wait before the second attempt. Defaults to 500 ms.
	Backoff time.Duration
}

// Client calls an OpenAI-compatible embeddings API. Transient failures are
// retried internally before ErrUnavailable surfaces to the caller.
// Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates an embeddings client.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- OpenAI embeddings wire types ---

type embeddingRequest struct {
	// Input is either a string or a []string.
	Input any    `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed produces a vector embedding for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch produces one embedding per input text, in input order. It
// fails with ErrUnavailable when the service returns fewer vectors than
// inputs or keeps erroring across retries.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out [][]float32
	policy := retry.Policy{
		Attempts:  c.cfg.Attempts,
		Backoff:   c.cfg.Backoff,
		Retryable: func(err error) bool { return errors.Is(err, errTransient) },
	}

	err := retry.Do(ctx, policy, func() error {
		vecs, err := c.call(ctx, texts)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// call makes one HTTP round trip. It wraps retryable failures with
// errTransient so the policy can tell them from hard errors.
func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	data, err := json.Marshal(embeddingRequest{Input: input, Model: c.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: HTTP %d", errTransient, resp.StatusCode)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("API error (%s): %s", embResp.Error.Type,
			redact.String(embResp.Error.Message, c.cfg.APIKey))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
	if len(embResp.Data) < len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(embResp.Data), len(texts))
	}

	// The API reports per-item indices; honour them rather than assuming
	// response order.
	vecs := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vecs, nil
}
