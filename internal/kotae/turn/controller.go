package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/Kotae/internal/kotae/config"
	"github.com/bdobrica/Kotae/internal/kotae/llm"
)

const (
	// restartCommand is the control message that arms a conversation
	// restart. Matching is case-insensitive after trimming.
	restartCommand = "/new"

	// recallLimit caps how many earlier QA pairs are recalled from the
	// ephemeral collection per turn.
	recallLimit = 3

	// answerTokenLimit bounds the final completion.
	answerTokenLimit = 2048

	answerWithContextTmpl = "Given the context: `%s`. Here is the question you're to reply now: " +
		"`%s`. Please provide a concise answer, stay truthful and factual."
	answerNoContextTmpl = "Here is the question you're to reply now: `%s`. " +
		"Please provide a concise answer, stay truthful and factual."

	offTopicSystemPrompt = "You're a question and answer bot."
	offTopicTmpl         = "Here is the question you're to reply now: `%s`. Please provide a concise answer."
)

// FlagStore persists the per-conversation restart flag. *store.Store
// satisfies it.
type FlagStore interface {
	Flag(ctx context.Context, key string) (bool, error)
	SetFlag(ctx context.Context, key string, v bool) error
}

// Distiller filters earlier user questions down to the ones still relevant
// to the current turn.
type Distiller interface {
	Distill(ctx context.Context, chatID, current string) string
}

// Oracle decides whether two texts are about the same topic.
type Oracle interface {
	Relevant(ctx context.Context, a, b string) bool
}

// Hypothesizer drafts a hypothetical answer used as a secondary retrieval
// query.
type Hypothesizer interface {
	Answer(ctx context.Context, question string) string
}

// Retriever searches the corpus and the ephemeral QA collection.
type Retriever interface {
	Compose(ctx context.Context, question, hypothesis string) ([]string, error)
	Recall(ctx context.Context, query string, limit int) string
}

// Completer produces the final answer. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, chatID, userPrompt string, opts llm.ChatOptions) (string, error)
}

// Ephemeral manages the per-deployment QA memory collection.
type Ephemeral interface {
	Reset(ctx context.Context) error
	UpsertQA(ctx context.Context, question, answer string) error
}

var _ Completer = (*llm.Client)(nil)

// Config carries the controller's collaborators and prompt configuration.
type Config struct {
	Flags        FlagStore
	Distiller    Distiller
	Oracle       Oracle
	Hypothesizer Hypothesizer
	Retriever    Retriever
	Completer    Completer
	Ephemeral    Ephemeral

	Content     config.Content
	TopicAnchor string
	Model       string
	PromptCap   int
}

// Controller runs one question-answer turn end to end.
type Controller struct {
	cfg Config
}

// New creates a turn controller from cfg.
func New(cfg Config) *Controller {
	if cfg.PromptCap <= 0 {
		cfg.PromptCap = config.DefaultPromptCap
	}
	return &Controller{cfg: cfg}
}

// Answer handles one inbound message for chatID and returns the reply text.
// The reply is always well-defined: control messages and empty input yield
// an empty reply, completion failures yield the configured error message,
// and a turn without usable context yields the no-answer message.
func (c *Controller) Answer(ctx context.Context, chatID, body string) string {
	text := strings.TrimSpace(body)
	if text == "" {
		return ""
	}
	if strings.EqualFold(text, restartCommand) {
		if err := c.cfg.Flags.SetFlag(ctx, restartKey(chatID), true); err != nil {
			slog.Error("turn: arm restart flag", "chat_id", chatID, "err", err)
		}
		return ""
	}

	restart, err := c.cfg.Flags.Flag(ctx, restartKey(chatID))
	if err != nil {
		slog.Warn("turn: read restart flag", "chat_id", chatID, "err", err)
	}

	var userPrompt string
	state := NewPromptState(c.cfg.Content.SystemPrompt, c.cfg.PromptCap)

	switch {
	case restart:
		// A restart turn answers from the base prompt alone. The QA memory
		// of the previous conversation is dropped first.
		if err := c.cfg.Ephemeral.Reset(ctx); err != nil {
			slog.Warn("turn: reset ephemeral collection", "chat_id", chatID, "err", err)
		}
		userPrompt = text

	case c.cfg.Oracle.Relevant(ctx, text, c.cfg.TopicAnchor):
		distilled := c.cfg.Distiller.Distill(ctx, chatID, text)

		hypothesis := c.cfg.Hypothesizer.Answer(ctx, text)
		passages, err := c.cfg.Retriever.Compose(ctx, text, hypothesis)
		if err != nil {
			slog.Error("turn: retrieve corpus context", "chat_id", chatID, "err", err)
			return c.cfg.Content.NoAnswerMessage
		}

		recallQuery := hypothesis
		if recallQuery == "" {
			recallQuery = text
		}
		recalled := c.cfg.Retriever.Recall(ctx, recallQuery, recallLimit)

		if block := contextBlock(distilled, recalled); block != "" {
			state.Update(block)
		}
		for _, p := range passages {
			state.AddPassage(p)
		}
		if state.Unchanged() {
			return c.cfg.Content.NoAnswerMessage
		}

		if len(passages) == 0 {
			userPrompt = fmt.Sprintf(answerNoContextTmpl, text)
		} else {
			userPrompt = fmt.Sprintf(answerWithContextTmpl, strings.Join(passages, "\n"), text)
		}

	default:
		// Off-topic questions never touch the corpus. Earlier exchanges of
		// this deployment may still inform the answer.
		distilled := c.cfg.Distiller.Distill(ctx, chatID, text)
		recalled := c.cfg.Retriever.Recall(ctx, text, recallLimit)
		state.Mutate(offTopicSystemPrompt + contextBlock(distilled, recalled))
		userPrompt = fmt.Sprintf(offTopicTmpl, text)
	}

	answer, err := c.cfg.Completer.Complete(ctx, chatID, userPrompt, llm.ChatOptions{
		Model:        c.cfg.Model,
		Restart:      restart,
		SystemPrompt: state.String(),
		PostPrompt:   c.cfg.Content.PostPrompt,
		TokenLimit:   answerTokenLimit,
	})
	if err != nil {
		// The restart flag stays armed so the next message retries the
		// restart turn.
		slog.Error("turn: completion failed", "chat_id", chatID, "err", err)
		return c.cfg.Content.ErrorMessage
	}

	if err := c.cfg.Ephemeral.UpsertQA(ctx, text, answer); err != nil {
		slog.Warn("turn: record qa pair", "chat_id", chatID, "err", err)
	}
	if restart {
		if err := c.cfg.Flags.SetFlag(ctx, restartKey(chatID), false); err != nil {
			slog.Error("turn: clear restart flag", "chat_id", chatID, "err", err)
		}
	}
	return answer
}

func restartKey(chatID string) string {
	return "restart:" + chatID
}

// contextBlock joins the non-empty context fragments of a turn, each on
// its own line.
func contextBlock(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(p)
	}
	return b.String()
}
