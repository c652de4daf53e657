// Package config loads Kotae's runtime settings.
//
// Settings come from three layers, lowest precedence first: built-in
// defaults, an optional YAML prompt pack, and environment variables. The
// environment variable names follow the deployment contract of the hosted
// webhook (lower-case keys such as "llm_endpoint" are intentional).
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default values applied when neither the environment nor the prompt pack
// provides one.
const (
	DefaultNoAnswerMessage = "No answer"
	DefaultTopicAnchor     = "This source material is a technical book on Kubernetes."
	DefaultPromptCap       = 30_000
)

// Settings is the full runtime configuration of the service.
type Settings struct {
	// LLMEndpoint is the base URL of the OpenAI-compatible chat service.
	LLMEndpoint string `env:"llm_endpoint" envDefault:"https://api.openai.com/v1"`
	// LLMAPIKey is the bearer credential for the LLM service.
	LLMAPIKey string `env:"LLM_API_KEY"`
	// Model is the chat model used for answer generation.
	Model string `env:"model" envDefault:"mistralai/Mixtral-8x7B-Instruct-v0.1"`

	// EmbeddingEndpoint is the base URL of the embeddings service. Empty
	// means "same endpoint as the LLM service".
	EmbeddingEndpoint string `env:"embedding_endpoint"`
	// EmbeddingModel is the embedding model. The corpus collection must have
	// been indexed with the same model.
	EmbeddingModel string `env:"embedding_model" envDefault:"text-embedding-3-small"`

	// VectorEndpoint is the base URL of the Qdrant-compatible vector store.
	VectorEndpoint string `env:"vector_endpoint" envDefault:"http://localhost:6333"`
	// VectorAPIKey authenticates against the vector store. Optional.
	VectorAPIKey string `env:"VECTOR_API_KEY"`

	// SystemPrompt seeds both the initial and the working system prompt.
	SystemPrompt string `env:"system_prompt"`
	// PostPrompt is appended to the chat template on every completion call.
	PostPrompt string `env:"post_prompt"`
	// ErrorMessage is the user-visible reply when the final completion fails.
	ErrorMessage string `env:"error_mesg"`
	// NoAnswerMessage is the user-visible reply when retrieval yields nothing.
	NoAnswerMessage string `env:"no_answer_mesg"`
	// CollectionName is the pre-populated corpus vector collection.
	CollectionName string `env:"collection_name"`
	// TopicAnchor is the fixed string the similarity oracle compares each
	// question against to decide whether it is on-topic for the corpus.
	TopicAnchor string `env:"topic_anchor"`
	// PromptCap is the soft length cap applied while composing the working
	// system prompt from retrieved passages.
	PromptCap int `env:"prompt_cap"`

	// BindAddr is the TCP address the HTTP server listens on.
	BindAddr string `env:"bind_addr" envDefault:":8080"`
	// DatabasePath is the SQLite file backing the key-value store and the
	// conversation chat log.
	DatabasePath string `env:"database_path" envDefault:"./kotae.db"`
}

// PromptPack is the YAML layer: a deployment can ship its prompts in a file
// instead of stuffing multi-line strings into environment variables.
// Environment variables still win where both are set.
type PromptPack struct {
	SystemPrompt    string `yaml:"system_prompt"`
	PostPrompt      string `yaml:"post_prompt"`
	ErrorMessage    string `yaml:"error_mesg"`
	NoAnswerMessage string `yaml:"no_answer_mesg"`
	TopicAnchor     string `yaml:"topic_anchor"`
}

// Load parses the environment into a Settings value, fills gaps from the
// prompt pack at promptsPath (when non-empty and the file exists), and
// applies defaults. CollectionName is the only hard requirement.
func Load(promptsPath string) (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if promptsPath != "" {
		pack, err := loadPromptPack(promptsPath)
		if err != nil {
			return nil, err
		}
		if pack != nil {
			s.applyPromptPack(pack)
		}
	}

	s.applyDefaults()

	if s.CollectionName == "" {
		return nil, fmt.Errorf("config: collection_name is required")
	}
	return &s, nil
}

// loadPromptPack reads and parses the YAML prompt pack. A missing file is
// not an error; the caller falls through to environment/defaults.
func loadPromptPack(path string) (*PromptPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read prompt pack %s: %w", path, err)
	}
	var pack PromptPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("config: parse prompt pack %s: %w", path, err)
	}
	return &pack, nil
}

// applyPromptPack fills fields the environment left empty.
func (s *Settings) applyPromptPack(p *PromptPack) {
	if s.SystemPrompt == "" {
		s.SystemPrompt = p.SystemPrompt
	}
	if s.PostPrompt == "" {
		s.PostPrompt = p.PostPrompt
	}
	if s.ErrorMessage == "" {
		s.ErrorMessage = p.ErrorMessage
	}
	if s.NoAnswerMessage == "" {
		s.NoAnswerMessage = p.NoAnswerMessage
	}
	if s.TopicAnchor == "" {
		s.TopicAnchor = p.TopicAnchor
	}
}

func (s *Settings) applyDefaults() {
	if s.EmbeddingEndpoint == "" {
		s.EmbeddingEndpoint = s.LLMEndpoint
	}
	if s.NoAnswerMessage == "" {
		s.NoAnswerMessage = DefaultNoAnswerMessage
	}
	if s.TopicAnchor == "" {
		s.TopicAnchor = DefaultTopicAnchor
	}
	if s.PromptCap <= 0 {
		s.PromptCap = DefaultPromptCap
	}
}

// Content is the immutable prompt configuration shared by every turn.
// Each turn derives its own working copy (turn.PromptState) from it, so no
// mutation ever leaks across turns.
type Content struct {
	// SystemPrompt is the configured base system prompt.
	SystemPrompt string
	// PostPrompt is appended to the chat template per call.
	PostPrompt string
	// ErrorMessage is the reply emitted when the final completion fails.
	ErrorMessage string
	// NoAnswerMessage is the reply emitted when no relevant context exists.
	NoAnswerMessage string
	// Collection is the corpus vector collection name.
	Collection string
}

// Content extracts the immutable per-deployment prompt configuration.
func (s *Settings) Content() Content {
	return Content{
		SystemPrompt:    s.SystemPrompt,
		PostPrompt:      s.PostPrompt,
		ErrorMessage:    s.ErrorMessage,
		NoAnswerMessage: s.NoAnswerMessage,
		Collection:      s.CollectionName,
	}
}
