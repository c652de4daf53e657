// Package app wires the configuration, storage, model clients, and HTTP
// surface into the running Kotae service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/Kotae/internal/kotae/config"
	"github.com/bdobrica/Kotae/internal/kotae/embed"
	"github.com/bdobrica/Kotae/internal/kotae/llm"
	"github.com/bdobrica/Kotae/internal/kotae/rag"
	"github.com/bdobrica/Kotae/internal/kotae/store"
	"github.com/bdobrica/Kotae/internal/kotae/turn"
	"github.com/bdobrica/Kotae/internal/kotae/vector"
	"github.com/bdobrica/Kotae/internal/kotae/webhook"
)

// App is the assembled Kotae service.
type App struct {
	settings  *config.Settings
	store     *store.Store
	ephemeral *vector.EphemeralStore
	server    *Server
}

// New builds the full pipeline from settings. The SQLite store is opened
// here; remote services are only reached once requests arrive.
func New(settings *config.Settings) (*App, error) {
	slog.Info("opening database", "path", settings.DatabasePath)
	st, err := store.Open(settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	embedClient := embed.NewClient(embed.Config{
		APIKey:  settings.LLMAPIKey,
		BaseURL: settings.EmbeddingEndpoint,
		Model:   settings.EmbeddingModel,
	})
	llmClient := llm.NewClient(llm.Config{
		APIKey:  settings.LLMAPIKey,
		BaseURL: settings.LLMEndpoint,
		Model:   settings.Model,
	}, st)
	vectorClient := vector.NewClient(vector.Config{
		BaseURL: settings.VectorEndpoint,
		APIKey:  settings.VectorAPIKey,
	})
	ephemeral := vector.NewEphemeralStore(vectorClient, embedClient)

	controller := turn.New(turn.Config{
		Flags:        st,
		Distiller:    rag.NewDistiller(llmClient, st, st),
		Oracle:       rag.NewOracle(embedClient),
		Hypothesizer: rag.NewHypothesizer(llmClient),
		Retriever:    rag.NewRetriever(embedClient, vectorClient, settings.CollectionName),
		Completer:    llmClient,
		Ephemeral:    ephemeral,
		Content:      settings.Content(),
		TopicAnchor:  settings.TopicAnchor,
		Model:        settings.Model,
		PromptCap:    settings.PromptCap,
	})

	server := NewServer(settings.BindAddr, webhook.NewHandler(controller))

	return &App{
		settings:  settings,
		store:     st,
		ephemeral: ephemeral,
		server:    server,
	}, nil
}

// Run starts the HTTP server and blocks until an interrupt or termination
// signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The ephemeral QA collection is created up front so the first recall
	// does not race its first upsert. Startup proceeds without it; the
	// collection is retried lazily on the first restart turn.
	if err := a.ephemeral.Ensure(ctx); err != nil {
		slog.Warn("ephemeral collection unavailable at startup", "err", err)
	}

	if err := a.server.Start(ctx); err != nil {
		return err
	}

	slog.Info("kotae is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop shuts down the HTTP server and closes the database.
func (a *App) Stop() {
	a.server.Stop()

	slog.Info("closing database")
	if err := a.store.Close(); err != nil {
		slog.Warn("close database", "err", err)
	}
}
