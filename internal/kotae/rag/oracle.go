package rag

import (
	"context"
	"log/slog"
)

// Oracle gives a binary "are these semantically related?" verdict built on
// an embedding dot product.
type Oracle struct {
	embed Embedder
}

// NewOracle creates a similarity oracle.
func NewOracle(embed Embedder) *Oracle {
	return &Oracle{embed: embed}
}

// Relevant embeds both strings in a single batch call and reports whether
// their dot product exceeds RelevanceThreshold. Any embedding failure
// yields false: without a verdict the caller must assume "not related".
func (o *Oracle) Relevant(ctx context.Context, a, b string) bool {
	vecs, err := o.embed.EmbedBatch(ctx, []string{a, b})
	if err != nil {
		slog.Error("oracle: embed pair", "err", err)
		return false
	}
	if len(vecs) < 2 || len(vecs[0]) == 0 || len(vecs[1]) == 0 {
		return false
	}

	score := dot(vecs[0], vecs[1])
	slog.Debug("oracle: similarity", "score", score,
		"a", truncateRunes(a, 100), "b", truncateRunes(b, 100))
	return score > RelevanceThreshold
}

// dot computes the dot product over the shared prefix of two vectors.
func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// truncateRunes shortens s to at most n code points, for log lines.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
