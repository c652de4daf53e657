// Package webhook exposes the question-answer pipeline over HTTP. A client
// POSTs the raw message text and receives the reply in the response body.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/bdobrica/Kotae/common/trace"
)

const (
	// conversationHeader carries the client-chosen conversation name.
	conversationHeader = "x-conversation-name"

	// conversationMaxRunes caps the length of a derived conversation ID.
	conversationMaxRunes = 48

	// maxBodyBytes bounds how much of the request body is read.
	maxBodyBytes = 1 << 20
)

// conversationSanitizer collapses anything outside [a-zA-Z0-9] to a dash.
var conversationSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ConversationID derives a stable conversation identifier from the raw
// header value. Non-alphanumeric runes become dashes and the result is
// truncated to conversationMaxRunes code points. An empty name yields an
// empty ID, which addresses the default conversation.
func ConversationID(name string) string {
	id := conversationSanitizer.ReplaceAllString(name, "-")
	runes := []rune(id)
	if len(runes) > conversationMaxRunes {
		runes = runes[:conversationMaxRunes]
	}
	return string(runes)
}

// Answerer runs one question-answer turn. *turn.Controller satisfies it.
type Answerer interface {
	Answer(ctx context.Context, chatID, body string) string
}

// Handler is the webhook HTTP surface.
type Handler struct {
	turns Answerer
	mux   *http.ServeMux
}

// NewHandler creates the webhook handler around the given turn runner.
func NewHandler(turns Answerer) *Handler {
	h := &Handler{turns: turns, mux: http.NewServeMux()}
	h.mux.HandleFunc("/", h.handleMessage)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleMessage answers one inbound message. The response is always 200
// with the reply text; delivery channels treat any non-200 as a retryable
// transport failure, so pipeline errors surface as configured fallback
// replies instead.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := trace.NewID()
	ctx := trace.WithID(r.Context(), requestID)
	chatID := ConversationID(r.Header.Get(conversationHeader))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("webhook: read request body", "request_id", requestID, "err", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	started := time.Now()
	reply := h.turns.Answer(ctx, chatID, string(body))
	slog.Info("webhook: handled message",
		"request_id", requestID,
		"chat_id", chatID,
		"reply_len", len(reply),
		"elapsed", time.Since(started),
	)

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, reply); err != nil {
		slog.Warn("webhook: write response", "request_id", requestID, "err", err)
	}
}
