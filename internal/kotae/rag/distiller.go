package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Kotae/internal/kotae/llm"
	"github.com/bdobrica/Kotae/internal/kotae/store"
)

const (
	// historyTurns is how many recent chat-log messages feed distillation.
	historyTurns = 8

	// historyCacheKey and historyCacheTTL control the KV persistence of the
	// distilled question list.
	historyCacheKey = "chat_history"
	historyCacheTTL = 120 * time.Second

	distillSystemPrompt = "You're an assistant bot reviewing the recent questions of a conversation " +
		"to decide which of them still matter."

	distillClassifyTmpl = "Here are the questions a user asked, oldest first:\n%s\n" +
		"The last question is the one being answered right now. For every earlier question, " +
		"state whether it is relevant to the last question. Mark a question relevant only " +
		"when you are at least 80%% confident."

	distillEmitPrompt = "Now respond with a JSON object containing only the relevant questions. " +
		"Use their original keys (question_1, question_2, ...) and always include the last " +
		"question under the key question_last. Respond with the JSON object only."

	distillTokenLimit = 512
)

// distillSchema accepts exactly the object shape the emit step asks for.
var distillSchema = jsonschema.MustCompileString("distill.schema.json", `{
	"type": "object",
	"patternProperties": {
		"^question_([0-9]+|last)$": {"type": "string"}
	},
	"additionalProperties": false
}`)

// questionPattern is the fallback extractor for malformed JSON.
var questionPattern = regexp.MustCompile(`"question_\d+":\s*"([^"]*)"`)

// fencePattern strips a Markdown code fence (with optional language tag)
// wrapped around the JSON object.
var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// HistorySource is the read-only chat-history view. *store.Store satisfies
// it; the distiller never writes to the log.
type HistorySource interface {
	History(ctx context.Context, chatID string, n int) ([]store.Message, error)
}

// Cache persists the distilled question list. *store.Store satisfies it.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

var (
	_ HistorySource = (*store.Store)(nil)
	_ Cache         = (*store.Store)(nil)
)

// Distiller reduces the recent turns of a conversation into the subset of
// user questions still relevant to the current one (semantic filter over
// recent user turns, driven by a two-step chain-of-chat).
type Distiller struct {
	llm     Completer
	history HistorySource
	cache   Cache
}

// NewDistiller creates a history distiller. cache may be nil to skip
// persistence.
func NewDistiller(llm Completer, history HistorySource, cache Cache) *Distiller {
	return &Distiller{llm: llm, history: history, cache: cache}
}

// Distill returns a prompt block listing the prior user questions of
// chatID that are still relevant to current, or "" when there are none or
// the chain fails. The parsed list (including the current question) is
// persisted to the cache with a short TTL.
func (d *Distiller) Distill(ctx context.Context, chatID, current string) string {
	questions := d.recentUserQuestions(ctx, chatID)
	if len(questions) == 0 {
		return ""
	}

	raw, err := d.chain(ctx, questions, current)
	if err != nil {
		slog.Warn("distiller: chain-of-chat failed", "chat_id", chatID, "err", err)
		return ""
	}

	relevant, err := parseDistilled(raw)
	if err != nil {
		slog.Warn("distiller: falling back to regex extraction", "err", err)
		relevant = extractQuestions(raw)
	}
	if d.cache != nil {
		d.persist(ctx, append(relevant, current))
	}
	if len(relevant) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nQuestions the user asked earlier that are still relevant:\n")
	for _, q := range relevant {
		fmt.Fprintf(&b, "`%s`\n", q)
	}
	return b.String()
}

// recentUserQuestions returns the user utterances among the last
// historyTurns recorded messages. Store failures degrade to no history.
func (d *Distiller) recentUserQuestions(ctx context.Context, chatID string) []string {
	if chatID == "" {
		return nil
	}
	messages, err := d.history.History(ctx, chatID, historyTurns)
	if err != nil {
		slog.Warn("distiller: read history", "chat_id", chatID, "err", err)
		return nil
	}
	var questions []string
	for _, m := range messages {
		if m.Role == store.RoleUser {
			questions = append(questions, m.Content)
		}
	}
	return questions
}

// chain runs the two-step classify-then-emit conversation and returns the
// raw text of the emit step.
func (d *Distiller) chain(ctx context.Context, questions []string, current string) (string, error) {
	var list strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&list, "question_%d: `%s`\n", i+1, q)
	}
	fmt.Fprintf(&list, "question_last: `%s`\n", current)

	msgs := []llm.Message{
		{Role: "system", Content: distillSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(distillClassifyTmpl, list.String())},
	}
	opts := llm.ChatOptions{Restart: true, TokenLimit: distillTokenLimit}

	verdicts, err := d.llm.Chat(ctx, msgs, opts)
	if err != nil {
		return "", err
	}

	msgs = append(msgs,
		llm.Message{Role: "assistant", Content: verdicts},
		llm.Message{Role: "user", Content: distillEmitPrompt},
	)
	return d.llm.Chat(ctx, msgs, opts)
}

// persist caches the distilled list under a short TTL. Failures are logged
// and never change user-visible behaviour.
func (d *Distiller) persist(ctx context.Context, questions []string) {
	data, err := json.Marshal(questions)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, historyCacheKey, string(data), historyCacheTTL); err != nil {
		slog.Warn("distiller: persist distilled history", "err", err)
	}
}

// parseDistilled interprets the emit-step output as the JSON object the
// prompt asked for, tolerating a Markdown code fence around it. The prior
// questions come back in key order (question_1, question_2, ...); the
// question_last entry is dropped, since the caller already holds the
// current question.
func parseDistilled(raw string) ([]string, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	if err := distillSchema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	obj := decoded.(map[string]any)
	type numbered struct {
		n int
		q string
	}
	var entries []numbered
	for key, value := range obj {
		if key == "question_last" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(key, "question_"))
		if err != nil {
			continue
		}
		entries = append(entries, numbered{n: n, q: value.(string)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].n < entries[j].n })

	questions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.q != "" {
			questions = append(questions, e.q)
		}
	}
	return questions, nil
}

// extractQuestions is the regex fallback for malformed JSON. It recovers
// whatever numbered question values it can find, in document order.
func extractQuestions(raw string) []string {
	var questions []string
	for _, m := range questionPattern.FindAllStringSubmatch(raw, -1) {
		if m[1] != "" {
			questions = append(questions, m[1])
		}
	}
	return questions
}
