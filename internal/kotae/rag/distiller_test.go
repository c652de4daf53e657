package rag_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Kotae/internal/kotae/rag"
	"github.com/bdobrica/Kotae/internal/kotae/store"
)

func userTurns(questions ...string) []store.Message {
	var out []store.Message
	for _, q := range questions {
		out = append(out,
			store.Message{Role: store.RoleUser, Content: q},
			store.Message{Role: store.RoleAssistant, Content: "answer to " + q},
		)
	}
	return out
}

func TestDistill_ParsesJSON(t *testing.T) {
	c := &stubCompleter{replies: []string{
		"question_1 is relevant, question_2 is not.",
		`{"question_1": "What is a Pod?", "question_last": "How do Pods restart?"}`,
	}}
	cache := &stubCache{}
	d := rag.NewDistiller(c, &stubHistory{messages: userTurns("What is a Pod?", "What's for lunch?")}, cache)

	got := d.Distill(context.Background(), "chat-1", "How do Pods restart?")
	if !strings.Contains(got, "`What is a Pod?`") {
		t.Fatalf("expected the relevant question in the block, got %q", got)
	}
	if strings.Contains(got, "lunch") {
		t.Fatalf("irrelevant question leaked into the block: %q", got)
	}

	// Two chat calls: classify, then emit — with the chain replayed.
	if len(c.calls) != 2 {
		t.Fatalf("expected 2 chat calls, got %d", len(c.calls))
	}
	if len(c.calls[1]) != 4 {
		t.Fatalf("emit step should replay the chain, got %d messages", len(c.calls[1]))
	}

	// The parsed list (plus the current question) lands in the cache.
	if cache.key != "chat_history" {
		t.Fatalf("unexpected cache key %q", cache.key)
	}
	if cache.ttl != 120*time.Second {
		t.Fatalf("unexpected cache ttl %v", cache.ttl)
	}
	if !strings.Contains(cache.value, "How do Pods restart?") {
		t.Fatalf("current question missing from cache value %q", cache.value)
	}
}

func TestDistill_TolleratesFencedJSON(t *testing.T) {
	c := &stubCompleter{replies: []string{
		"verdicts",
		"```json\n{\"question_1\": \"kept\", \"question_last\": \"now\"}\n```",
	}}
	d := rag.NewDistiller(c, &stubHistory{messages: userTurns("kept")}, nil)

	got := d.Distill(context.Background(), "chat-1", "now")
	if !strings.Contains(got, "`kept`") {
		t.Fatalf("fenced JSON should parse, got %q", got)
	}
}

func TestDistill_RegexFallback(t *testing.T) {
	// Trailing prose makes the JSON invalid; the regex still finds the pairs.
	c := &stubCompleter{replies: []string{
		"verdicts",
		`Sure! Here you go: {"question_1": "recovered", "question_last": "now"} — hope that helps.`,
	}}
	d := rag.NewDistiller(c, &stubHistory{messages: userTurns("recovered")}, nil)

	got := d.Distill(context.Background(), "chat-1", "now")
	if !strings.Contains(got, "`recovered`") {
		t.Fatalf("regex fallback should recover the question, got %q", got)
	}
}

func TestDistill_SchemaRejectsForeignKeys(t *testing.T) {
	// Valid JSON with an unexpected key: schema validation fails, and the
	// regex fallback recovers only the numbered questions.
	c := &stubCompleter{replies: []string{
		"verdicts",
		`{"question_1": "ok", "reasoning": "because"}`,
	}}
	d := rag.NewDistiller(c, &stubHistory{messages: userTurns("ok")}, nil)

	got := d.Distill(context.Background(), "chat-1", "now")
	if !strings.Contains(got, "`ok`") || strings.Contains(got, "because") {
		t.Fatalf("unexpected block %q", got)
	}
}

func TestDistill_GarbageYieldsEmpty(t *testing.T) {
	c := &stubCompleter{replies: []string{"verdicts", "I could not decide."}}
	d := rag.NewDistiller(c, &stubHistory{messages: userTurns("q")}, nil)

	if got := d.Distill(context.Background(), "chat-1", "now"); got != "" {
		t.Fatalf("unparseable output should distill to empty, got %q", got)
	}
}

func TestDistill_NoHistoryNoCalls(t *testing.T) {
	c := &stubCompleter{}
	d := rag.NewDistiller(c, &stubHistory{}, nil)

	if got := d.Distill(context.Background(), "chat-1", "now"); got != "" {
		t.Fatalf("expected empty block, got %q", got)
	}
	if len(c.calls) != 0 {
		t.Fatalf("no history must mean no LLM calls, got %d", len(c.calls))
	}
}

func TestDistill_ChainFailureYieldsEmpty(t *testing.T) {
	d := rag.NewDistiller(&stubCompleter{err: errStub}, &stubHistory{messages: userTurns("q")}, nil)
	if got := d.Distill(context.Background(), "chat-1", "now"); got != "" {
		t.Fatalf("expected empty block on chain failure, got %q", got)
	}
}

func TestDistill_OrdersByKeyNumber(t *testing.T) {
	c := &stubCompleter{replies: []string{
		"verdicts",
		`{"question_2": "second", "question_1": "first", "question_last": "now"}`,
	}}
	d := rag.NewDistiller(c, &stubHistory{messages: userTurns("first", "second")}, nil)

	got := d.Distill(context.Background(), "chat-1", "now")
	first := strings.Index(got, "`first`")
	second := strings.Index(got, "`second`")
	if first == -1 || second == -1 || first > second {
		t.Fatalf("questions out of order in %q", got)
	}
}
