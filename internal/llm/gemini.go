package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugh/medpocket/pkg/config"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini calls Google's Gemini API through the genai SDK.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
	hasKey      bool
}

func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	g := &Gemini{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		hasKey:      cfg.APIKey != "",
	}
	// OpenRouter-style ids ("vendor/model") mean the default model was never
	// overridden for Gemini.
	if g.model == "" || strings.Contains(g.model, "/") {
		g.model = defaultGeminiModel
	}
	if !g.hasKey {
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Gemini) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if !g.hasKey || g.client == nil {
		return "", ErrMissingAPIKey
	}
	if err := validate(req); err != nil {
		return "", err
	}

	system, contents := toGeminiContents(req.Messages)

	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	model := g.model
	if req.Model != "" && !strings.Contains(req.Model, "/") {
		model = req.Model
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", &ProviderError{Provider: ProviderGemini, Message: err.Error()}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// toGeminiContents folds system messages into one instruction and maps the
// assistant role onto Gemini's "model" role.
func toGeminiContents(msgs []Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
