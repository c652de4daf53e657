package rag_test

import (
	"context"
	"testing"

	"github.com/bdobrica/Kotae/internal/kotae/rag"
)

func TestOracle_AboveThreshold(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"a": {0.9, 0.3},
		"b": {0.9, 0.3}, // dot = 0.81 + 0.09 = 0.90
	}}
	o := rag.NewOracle(emb)
	if !o.Relevant(context.Background(), "a", "b") {
		t.Fatal("expected relevant verdict")
	}
	if len(emb.batches) != 1 || len(emb.batches[0]) != 2 {
		t.Fatalf("expected a single batch of two strings, got %v", emb.batches)
	}
}

func TestOracle_BelowThreshold(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"a": {1, 0},
		"b": {0, 1}, // dot = 0
	}}
	if rag.NewOracle(emb).Relevant(context.Background(), "a", "b") {
		t.Fatal("expected irrelevant verdict")
	}
}

func TestOracle_ExactThresholdIsNotRelevant(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"a": {0.75, 0},
		"b": {1, 0}, // dot = 0.75, strictly-greater rule
	}}
	if rag.NewOracle(emb).Relevant(context.Background(), "a", "b") {
		t.Fatal("a score equal to the threshold must not count as relevant")
	}
}

func TestOracle_EmbedFailure(t *testing.T) {
	emb := &stubEmbedder{err: errStub}
	if rag.NewOracle(emb).Relevant(context.Background(), "a", "b") {
		t.Fatal("embedding failure must yield false")
	}
}

func TestOracle_MissingVector(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"a": {1, 0},
		"b": {},
	}}
	if rag.NewOracle(emb).Relevant(context.Background(), "a", "b") {
		t.Fatal("a missing embedding must yield false")
	}
}
