package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const (
	// EphemeralCollection stores prior Q/A pairs for short-term recall.
	EphemeralCollection = "ephemeral"
	// EphemeralDim matches the embedding service's output dimension.
	EphemeralDim = 1536
	// qaMaxRunes caps the stored Q/A text, counted in code points.
	qaMaxRunes = 1500
)

// Embedder is the minimal embedding surface the ephemeral store needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EphemeralStore owns the per-process ephemeral collection: it creates and
// resets the collection and allocates point IDs.
//
// IDs are handed out by a mutex-guarded monotonic counter seeded once from
// the collection's observed size, so concurrent upserts within one process
// never collide. Two processes sharing the collection can still race; the
// design tolerates duplicates there, since retrieval dedups by ID only
// within a single turn.
type EphemeralStore struct {
	client *Client
	embed  Embedder

	mu     sync.Mutex
	nextID uint64 // 0 means "not yet seeded"
}

// NewEphemeralStore creates the ephemeral Q/A store.
func NewEphemeralStore(client *Client, embed Embedder) *EphemeralStore {
	return &EphemeralStore{client: client, embed: embed}
}

// Ensure creates the ephemeral collection if it does not exist yet.
func (s *EphemeralStore) Ensure(ctx context.Context) error {
	return s.client.CreateCollection(ctx, EphemeralCollection, EphemeralDim)
}

// Reset drops and recreates the ephemeral collection, forgetting all prior
// Q/A pairs. Invoked on restart turns.
func (s *EphemeralStore) Reset(ctx context.Context) error {
	// Delete may fail when the collection does not exist yet; that is fine.
	if err := s.client.DeleteCollection(ctx, EphemeralCollection); err != nil {
		slog.Debug("ephemeral: delete before reset", "err", err)
	}
	if err := s.client.CreateCollection(ctx, EphemeralCollection, EphemeralDim); err != nil {
		return err
	}

	s.mu.Lock()
	s.nextID = 1
	s.mu.Unlock()
	return nil
}

// UpsertQA stores one question/answer exchange, truncated to the payload
// cap, under a freshly allocated point ID.
func (s *EphemeralStore) UpsertQA(ctx context.Context, question, answer string) error {
	qa := truncateRunes(fmt.Sprintf("%s\n %s", question, answer), qaMaxRunes)

	vec, err := s.embed.Embed(ctx, qa)
	if err != nil {
		return fmt.Errorf("vector: embed qa pair: %w", err)
	}

	id, err := s.allocateID(ctx)
	if err != nil {
		return err
	}

	return s.client.Upsert(ctx, EphemeralCollection, []UpsertPoint{{
		ID:      id,
		Vector:  vec,
		Payload: map[string]any{"text": qa},
	}})
}

// allocateID returns the next monotonic point ID, seeding the counter from
// the collection's point count on first use.
func (s *EphemeralStore) allocateID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextID == 0 {
		count, err := s.client.Count(ctx, EphemeralCollection)
		if err != nil {
			return 0, fmt.Errorf("vector: seed ephemeral id allocator: %w", err)
		}
		s.nextID = count + 1
	}

	id := s.nextID
	s.nextID++
	return id, nil
}

// truncateRunes shortens s to at most n code points.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
