package models

import (
	"time"

	"github.com/google/uuid"
)

type GenerationStatus string

const (
	GenerationStatusQueued  GenerationStatus = "queued"
	GenerationStatusRunning GenerationStatus = "running"
	GenerationStatusReady   GenerationStatus = "ready"
	GenerationStatusFailed  GenerationStatus = "failed"
	GenerationStatusSaved   GenerationStatus = "saved"
)

// GeneratedCard is a preview produced by a generation session, not yet a
// MedicalCard.
type GeneratedCard struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Sources  []string `json:"sources"`
	Sections []string `json:"sections"`
}

// GenerationJob tracks one asynchronous batched generation run.
type GenerationJob struct {
	Base
	UserID    uuid.UUID        `gorm:"type:uuid;index;not null" json:"user_id"`
	Status    GenerationStatus `gorm:"not null;index" json:"status"`
	State     string           `json:"state"`
	Specialty string           `json:"specialty"`
	Section   string           `json:"section"`
	Prompt    string           `gorm:"type:text" json:"prompt"`
	Document  string           `gorm:"type:text" json:"-"`

	Target    int `json:"target"`
	Generated int `json:"generated"`
	Batches   int `json:"batches"`

	Cards        []GeneratedCard `gorm:"serializer:json" json:"cards"`
	BatchErrors  []string        `gorm:"serializer:json" json:"batch_errors,omitempty"`
	Error        string          `json:"error,omitempty"`
	SavedCardIDs []uuid.UUID     `gorm:"serializer:json" json:"saved_card_ids,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}
