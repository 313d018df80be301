package dto

import (
	"time"

	"github.com/hugh/medpocket/internal/api/validation"
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/llm"
)

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Model       string        `json:"model,omitempty" validate:"max=200"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int           `json:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=64000"`
}

func (r ChatRequest) Validate() map[string]string {
	return validation.Struct(r)
}

func (r ChatRequest) ToLLM() llm.ChatRequest {
	msgs := make([]llm.Message, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return llm.ChatRequest{
		Messages:    msgs,
		Model:       r.Model,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
}

type ChatResponse struct {
	Content string `json:"content"`
}

type GenerateRequest struct {
	Prompt    string `json:"prompt" validate:"max=20000"`
	Document  string `json:"document,omitempty" validate:"max=2000000"`
	Specialty string `json:"specialty,omitempty" validate:"max=100"`
	Section   string `json:"section,omitempty" validate:"omitempty,section"`
}

func (r GenerateRequest) Validate() map[string]string {
	errs := validation.Struct(r)
	if r.Prompt == "" && r.Document == "" {
		errs["prompt"] = "Prompt or document is required"
	}
	return errs
}

type GenerateResponse struct {
	State   string                 `json:"state"`
	Mode    string                 `json:"mode"`
	Cards   []models.GeneratedCard `json:"cards"`
	Target  int                    `json:"target"`
	Batches int                    `json:"batches"`
	Errors  []string               `json:"errors,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

type GenerationJobResponse struct {
	ID           string                 `json:"id"`
	Status       string                 `json:"status"`
	State        string                 `json:"state"`
	Specialty    string                 `json:"specialty,omitempty"`
	Section      string                 `json:"section,omitempty"`
	Prompt       string                 `json:"prompt"`
	Target       int                    `json:"target"`
	Generated    int                    `json:"generated"`
	Batches      int                    `json:"batches"`
	Cards        []models.GeneratedCard `json:"cards"`
	Errors       []string               `json:"errors,omitempty"`
	Error        string                 `json:"error,omitempty"`
	SavedCardIDs []string               `json:"saved_card_ids,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

func ToGenerationJobResponse(j *models.GenerationJob) GenerationJobResponse {
	saved := make([]string, len(j.SavedCardIDs))
	for i, id := range j.SavedCardIDs {
		saved[i] = id.String()
	}
	cards := j.Cards
	if cards == nil {
		cards = []models.GeneratedCard{}
	}
	return GenerationJobResponse{
		ID:           j.ID.String(),
		Status:       string(j.Status),
		State:        j.State,
		Specialty:    j.Specialty,
		Section:      j.Section,
		Prompt:       j.Prompt,
		Target:       j.Target,
		Generated:    j.Generated,
		Batches:      j.Batches,
		Cards:        cards,
		Errors:       j.BatchErrors,
		Error:        j.Error,
		SavedCardIDs: saved,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

type SaveGeneratedRequest struct {
	Indexes []int `json:"indexes" validate:"required,min=1,dive,gte=0"`
}

func (r SaveGeneratedRequest) Validate() map[string]string {
	return validation.Struct(r)
}

type SaveGeneratedResponse struct {
	Cards []types.Card          `json:"cards"`
	Job   GenerationJobResponse `json:"job"`
}
