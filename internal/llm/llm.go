// Package llm proxies chat completions to an external provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hugh/medpocket/pkg/config"
)

var (
	ErrMissingAPIKey   = errors.New("LLM API key not configured")
	ErrNoMessages      = errors.New("messages are required")
	ErrEmptyCompletion = errors.New("provider returned no completion")
	ErrUnknownProvider = errors.New("unknown LLM provider")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest leaves Model, Temperature and MaxTokens to provider defaults
// when zero.
type ChatRequest struct {
	Messages    []Message
	Model       string
	Temperature *float64
	MaxTokens   int
}

// ChatCompleter sends one conversation and returns the assistant's reply.
type ChatCompleter interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ProviderError carries the upstream message through to API callers.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// New builds the configured provider, wrapped with call metrics when rec is
// non-nil. A missing key is not an error here: the returned completer fails
// each call with ErrMissingAPIKey so the server still boots.
func New(cfg config.LLMConfig, rec CallRecorder, logger *slog.Logger) (ChatCompleter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var c ChatCompleter
	switch cfg.Provider {
	case "", ProviderOpenRouter:
		c = NewOpenRouter(cfg, logger)
	case ProviderGemini:
		g, err := NewGemini(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		c = g
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	if cfg.APIKey == "" {
		logger.Warn("LLM API key not set, AI endpoints will fail", "provider", cfg.Provider)
	}
	if rec != nil {
		c = WithMetrics(c, cfg.Provider, rec)
	}
	return c, nil
}

// CallRecorder receives one observation per completed call.
type CallRecorder interface {
	ObserveLLMCall(provider, result string, d time.Duration)
}

type instrumented struct {
	next     ChatCompleter
	provider string
	rec      CallRecorder
}

func WithMetrics(next ChatCompleter, provider string, rec CallRecorder) ChatCompleter {
	if provider == "" {
		provider = ProviderOpenRouter
	}
	return &instrumented{next: next, provider: provider, rec: rec}
}

func (i *instrumented) Chat(ctx context.Context, req ChatRequest) (string, error) {
	start := time.Now()
	out, err := i.next.Chat(ctx, req)
	result := "ok"
	if err != nil {
		result = "error"
	}
	i.rec.ObserveLLMCall(i.provider, result, time.Since(start))
	return out, err
}

func validate(req ChatRequest) error {
	if len(req.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}
