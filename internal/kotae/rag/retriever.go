package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bdobrica/Kotae/internal/kotae/vector"
)

const searchLimit = 5

// Retriever executes dual-query retrieval against the corpus collection and
// short-term Q/A recall against the ephemeral collection.
type Retriever struct {
	embed      Embedder
	search     Searcher
	collection string
}

// NewRetriever creates a retriever over the named corpus collection.
func NewRetriever(embed Embedder, search Searcher, collection string) *Retriever {
	return &Retriever{embed: embed, search: search, collection: collection}
}

// Compose runs the dual-query retrieval: the raw question first, then the
// hypothetical answer (skipped when empty). Hits above the relevance
// threshold are deduplicated by point ID; on collision the
// hypothetical-answer result overwrites the question result. The passages
// come back in first-seen order.
//
// An embedding failure on the question is fatal to retrieval and surfaces
// to the caller (which replies with the no-answer message). Search
// failures and hypothesis-embedding failures are logged and skipped.
func (r *Retriever) Compose(ctx context.Context, question, hypothesis string) ([]string, error) {
	questionVec, err := r.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}

	// Insertion-ordered dedup map. The question pass must run before the
	// hypothesis pass so that overwrites favour the hypothesis.
	var order []uint64
	byID := make(map[uint64]string)

	collect := func(points []vector.Point) {
		for _, p := range points {
			if p.Score <= RelevanceThreshold {
				continue
			}
			if _, seen := byID[p.ID]; !seen {
				order = append(order, p.ID)
			}
			byID[p.ID] = p.Text
		}
	}

	points, err := r.search.Search(ctx, r.collection, questionVec, searchLimit)
	if err != nil {
		slog.Error("rag: question search", "collection", r.collection, "err", err)
	} else {
		collect(points)
	}

	if hypothesis != "" {
		hypoVec, err := r.embed.Embed(ctx, hypothesis)
		if err != nil {
			slog.Warn("rag: embed hypothesis", "err", err)
		} else {
			points, err := r.search.Search(ctx, r.collection, hypoVec, searchLimit)
			if err != nil {
				slog.Error("rag: hypothesis search", "collection", r.collection, "err", err)
			} else {
				collect(points)
			}
		}
	}

	passages := make([]string, 0, len(order))
	for _, id := range order {
		passages = append(passages, byID[id])
	}
	return passages, nil
}

// Recall searches the ephemeral collection for prior Q/A pairs related to
// query and returns up to limit of them, oldest first (ascending point ID),
// joined by newline. Failures degrade to an empty block; short-term recall
// is never load-bearing.
func (r *Retriever) Recall(ctx context.Context, query string, limit int) string {
	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		slog.Warn("rag: embed recall query", "err", err)
		return ""
	}

	points, err := r.search.Search(ctx, vector.EphemeralCollection, vec, searchLimit)
	if err != nil {
		slog.Debug("rag: ephemeral recall", "err", err)
		return ""
	}

	kept := points[:0]
	for _, p := range points {
		if p.Score > RelevanceThreshold {
			kept = append(kept, p)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	if len(kept) > limit {
		kept = kept[:limit]
	}

	out := ""
	for i, p := range kept {
		if i > 0 {
			out += "\n"
		}
		out += p.Text
	}
	return out
}
