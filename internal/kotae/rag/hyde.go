package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bdobrica/Kotae/internal/kotae/llm"
)

const (
	// hypoSystemPrompt is the generalist persona used for hypothetical
	// answers: the model answers from its priors, before any grounding.
	hypoSystemPrompt = "You're an assistant bot with expertise in all domains of human knowledge."

	hypoUserPromptTmpl = "You're preparing to answer questions about a specific source material, " +
		"before ingesting the source material, you need to answer the question based on the " +
		"knowledge you're trained on, here it is: `%s`, please provide a concise answer in one " +
		"paragraph, stay truthful and factual."

	hypoTokenLimit = 128
)

// Hypothesizer produces a short model-priors-only answer to a question,
// used as a second retrieval query (HyDE).
type Hypothesizer struct {
	llm Completer
}

// NewHypothesizer creates a hypothetical answerer.
func NewHypothesizer(llm Completer) *Hypothesizer {
	return &Hypothesizer{llm: llm}
}

// Answer returns a concise single-paragraph answer drawn from the model's
// prior knowledge, or "" when the call fails. Callers MUST treat "" as
// "skip the secondary retrieval".
func (h *Hypothesizer) Answer(ctx context.Context, question string) string {
	msgs := []llm.Message{
		{Role: "system", Content: hypoSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(hypoUserPromptTmpl, question)},
	}
	answer, err := h.llm.Chat(ctx, msgs, llm.ChatOptions{
		Restart:    true,
		TokenLimit: hypoTokenLimit,
	})
	if err != nil {
		slog.Warn("hyde: hypothetical answer failed", "err", err)
		return ""
	}
	return answer
}
