package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/medpocket/pkg/queue"
)

// Task type names
const (
	TypeGenerateCards     = "generation:cards"
	TypePurgeGenerations  = "generation:purge"
	generateCardsTimeout  = 30 * time.Minute
	purgeGenerationsLimit = 5 * time.Minute
)

// GenerateCardsPayload points at a queued GenerationJob row; the prompt and
// document stay in the database rather than in redis.
type GenerateCardsPayload struct {
	JobID  uuid.UUID `json:"job_id"`
	UserID uuid.UUID `json:"user_id"`
}

// NewGenerateCardsTask is not retried: a rerun would repeat every paid
// provider call the first attempt already made.
func NewGenerateCardsTask(payload GenerateCardsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerateCards, data,
		asynq.Queue(queue.QueueGeneration),
		asynq.MaxRetry(0),
		asynq.Timeout(generateCardsTimeout),
	), nil
}

// NewPurgeGenerationsTask carries no payload; the worker applies its own
// retention window.
func NewPurgeGenerationsTask() *asynq.Task {
	return asynq.NewTask(TypePurgeGenerations, nil,
		asynq.Queue(queue.QueueMaintenance),
		asynq.Timeout(purgeGenerationsLimit),
	)
}
