// Package llm wraps the OpenAI-compatible chat completions service.
//
// The service is conversational: unless a call asks for a restart, the
// client conditions the completion on the conversation's recorded history
// and appends the new exchange to the chat log afterwards. The turn
// pipeline itself only ever reads that log.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Kotae/common/redact"
	"github.com/bdobrica/Kotae/internal/kotae/store"
)

// ErrCompletionFailed wraps every failure of a completion call.
var ErrCompletionFailed = errors.New("llm: completion failed")

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second

	// historyWindow is how many recorded messages are replayed into the
	// context window of a non-restart completion.
	historyWindow = 8
)

// Message is one entry of a chat template.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions control a single completion call.
type ChatOptions struct {
	// Model overrides the client's configured model when non-empty.
	Model string
	// Restart starts the conversation fresh: no history is replayed.
	Restart bool
	// SystemPrompt is sent as the system message when non-empty.
	SystemPrompt string
	// PostPrompt is appended to the chat template after the user message.
	PostPrompt string
	// TokenLimit caps the completion length. Zero means provider default.
	TokenLimit int
}

// ChatLog is the persistence surface the client records exchanges into.
// *store.Store satisfies it.
type ChatLog interface {
	AppendMessage(ctx context.Context, chatID, role, content string) error
	History(ctx context.Context, chatID string, n int) ([]store.Message, error)
}

var _ ChatLog = (*store.Store)(nil)

// Config configures the chat client.
type Config struct {
	// APIKey is the bearer token for authentication.
	APIKey string
	// BaseURL is the OpenAI-compatible endpoint base.
	BaseURL string
	// Model is the default chat model.
	Model string
	// Timeout is the HTTP request timeout. Defaults to 60 s.
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat completions API.
// Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	log    ChatLog
}

// NewClient creates a chat client. log may be nil, in which case no history
// is replayed or recorded.
func NewClient(cfg Config, log ChatLog) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// --- OpenAI chat wire types ---

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete answers userPrompt within the conversation identified by chatID.
//
// Unless opts.Restart is set, the recorded history of chatID (up to the
// last 8 messages) is replayed before the new user message. On success the
// exchange is appended to the chat log; log failures are logged and do not
// affect the returned answer. An empty chatID disables both behaviours.
func (c *Client) Complete(ctx context.Context, chatID, userPrompt string, opts ChatOptions) (string, error) {
	var msgs []Message
	if opts.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: opts.SystemPrompt})
	}

	if !opts.Restart && chatID != "" && c.log != nil {
		history, err := c.log.History(ctx, chatID, historyWindow)
		if err != nil {
			slog.Warn("llm: read chat history", "chat_id", chatID, "err", err)
		}
		for _, m := range history {
			msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
		}
	}

	msgs = append(msgs, Message{Role: "user", Content: userPrompt})
	if opts.PostPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: opts.PostPrompt})
	}

	answer, err := c.Chat(ctx, msgs, opts)
	if err != nil {
		return "", err
	}

	if chatID != "" && c.log != nil {
		if err := c.log.AppendMessage(ctx, chatID, store.RoleUser, userPrompt); err != nil {
			slog.Warn("llm: record user message", "chat_id", chatID, "err", err)
		} else if err := c.log.AppendMessage(ctx, chatID, store.RoleAssistant, answer); err != nil {
			slog.Warn("llm: record assistant message", "chat_id", chatID, "err", err)
		}
	}
	return answer, nil
}

// Chat sends a fully assembled chat template and returns the first choice.
// It neither replays nor records history; Complete and the history
// distiller build on it.
func (c *Client) Chat(ctx context.Context, msgs []Message, opts ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}

	data, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: opts.TokenLimit,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrCompletionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrCompletionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: http request: %v", ErrCompletionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrCompletionFailed, err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrCompletionFailed, err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: API error (%s): %s",
			ErrCompletionFailed, chatResp.Error.Type,
			redact.String(chatResp.Error.Message, c.cfg.APIKey))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: unexpected HTTP status %d", ErrCompletionFailed, resp.StatusCode)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrCompletionFailed)
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
