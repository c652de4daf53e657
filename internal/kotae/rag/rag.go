// Package rag implements the retrieval side of the turn pipeline: the
// similarity oracle that gates retrieval by topic, the hypothetical
// answerer that broadens recall, the history distiller that compacts recent
// conversation, and the retrieval composer that assembles the context
// bundle from the corpus collection.
package rag

import (
	"context"
	"errors"

	"github.com/bdobrica/Kotae/internal/kotae/llm"
	"github.com/bdobrica/Kotae/internal/kotae/vector"
)

// ErrParseFailed is returned internally by the distiller when the LLM's
// JSON output cannot be interpreted; callers fall back to regex extraction.
var ErrParseFailed = errors.New("rag: distiller output parse failed")

// RelevanceThreshold is the empirical cutoff on raw dot products of the
// embedding service's outputs. Vectors are not unit-normalized, so this is
// not a strict cosine bound; the value matches the one the corpus was
// tuned against.
const RelevanceThreshold = 0.75

// Embedder vectorizes one or many strings. *embed.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer sends an assembled chat template to the LLM. *llm.Client
// satisfies it.
type Completer interface {
	Chat(ctx context.Context, msgs []llm.Message, opts llm.ChatOptions) (string, error)
}

// Searcher runs k-NN queries against a named collection. *vector.Client
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, collection string, vec []float32, limit int) ([]vector.Point, error)
}

var (
	_ Completer = (*llm.Client)(nil)
	_ Searcher  = (*vector.Client)(nil)
)
