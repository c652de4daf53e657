package rag_test

import (
	"context"
	"errors"
	"time"

	"github.com/bdobrica/Kotae/internal/kotae/llm"
	"github.com/bdobrica/Kotae/internal/kotae/store"
	"github.com/bdobrica/Kotae/internal/kotae/vector"
)

var errStub = errors.New("stub failure")

// stubEmbedder returns canned vectors per input text.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	batches [][]string
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			v = []float32{1, 0}
		}
		out[i] = v
	}
	return out, nil
}

// stubSearcher answers searches per collection with canned hits.
type stubSearcher struct {
	hits    map[string][][]vector.Point // per collection, consumed in order
	err     error
	queries []string // collections queried, in order
}

func (s *stubSearcher) Search(_ context.Context, collection string, _ []float32, _ int) ([]vector.Point, error) {
	s.queries = append(s.queries, collection)
	if s.err != nil {
		return nil, s.err
	}
	queue := s.hits[collection]
	if len(queue) == 0 {
		return nil, nil
	}
	head := queue[0]
	s.hits[collection] = queue[1:]
	return head, nil
}

// stubCompleter replays canned chat replies in order.
type stubCompleter struct {
	replies []string
	err     error
	calls   [][]llm.Message
}

func (c *stubCompleter) Chat(_ context.Context, msgs []llm.Message, _ llm.ChatOptions) (string, error) {
	c.calls = append(c.calls, msgs)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", errors.New("stub: out of replies")
	}
	head := c.replies[0]
	c.replies = c.replies[1:]
	return head, nil
}

// stubHistory serves a fixed message slice for any chat.
type stubHistory struct {
	messages []store.Message
	err      error
}

func (h *stubHistory) History(_ context.Context, _ string, n int) ([]store.Message, error) {
	if h.err != nil {
		return nil, h.err
	}
	if len(h.messages) > n {
		return h.messages[len(h.messages)-n:], nil
	}
	return h.messages, nil
}

// stubCache records the last Set call.
type stubCache struct {
	key   string
	value string
	ttl   time.Duration
	err   error
}

func (c *stubCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.key, c.value, c.ttl = key, value, ttl
	return c.err
}
