package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/generation"
	"github.com/hugh/medpocket/internal/llm"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("generation job not found")

// Metrics is satisfied by observability.Prom.
type Metrics interface {
	generation.Recorder
	ObserveJob(jobType, result string, d time.Duration)
}

type Handler struct {
	db        *gorm.DB
	logger    *slog.Logger
	client    llm.ChatCompleter
	cfg       generation.Config
	retention time.Duration
	metrics   Metrics
}

func NewHandler(db *gorm.DB, client llm.ChatCompleter, cfg generation.Config, retention time.Duration, metrics Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:        db,
		logger:    logger,
		client:    client,
		cfg:       cfg,
		retention: retention,
		metrics:   metrics,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeGenerateCards, h.HandleGenerateCards)
	mux.HandleFunc(TypePurgeGenerations, h.HandlePurgeGenerations)
}

func (h *Handler) HandleGenerateCards(ctx context.Context, t *asynq.Task) error {
	var payload GenerateCardsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	var job models.GenerationJob
	err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", payload.JobID, payload.UserID).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s: %w", ErrJobNotFound, payload.JobID, asynq.SkipRetry)
		}
		return fmt.Errorf("loading job: %w", err)
	}

	if job.Status != models.GenerationStatusQueued {
		h.logger.Warn("generation job already handled", "job_id", job.ID, "status", job.Status)
		return nil
	}

	start := time.Now()
	logger := h.logger.With("job_id", job.ID, "user_id", job.UserID)
	logger.Info("starting generation job")

	job.Status = models.GenerationStatusRunning
	job.State = string(generation.StateIdle)
	job.StartedAt = &start
	if err := h.db.WithContext(ctx).Save(&job).Error; err != nil {
		return fmt.Errorf("marking job running: %w", err)
	}

	hooks := generation.Hooks{Progress: h.progress(ctx, &job, logger)}
	if h.metrics != nil {
		hooks.Recorder = h.metrics
	}
	session := generation.NewSession(h.client, h.cfg, hooks, logger)

	res, runErr := session.Run(ctx, generation.Request{
		Prompt:   job.Prompt,
		Document: job.Document,
		Section:  job.Section,
	})

	completed := time.Now()
	job.CompletedAt = &completed
	if res != nil {
		job.State = string(res.State)
		job.Target = res.Target
		job.Generated = len(res.Cards)
		job.Batches = res.Batches
		job.Cards = res.Cards
		job.BatchErrors = res.BatchErrors
		if res.Err != nil {
			job.Error = res.Err.Error()
		}
	}

	result := "done"
	if runErr != nil {
		result = "failed"
		job.Status = models.GenerationStatusFailed
		job.State = string(generation.StateIdle)
		job.Error = runErr.Error()
		logger.Error("generation job failed", "error", runErr)
	} else {
		job.Status = models.GenerationStatusReady
		logger.Info("generation job ready",
			"cards", job.Generated,
			"batches", job.Batches,
			"duration", time.Since(start).String(),
		)
	}

	// The worker context may be cancelled by the task timeout; the outcome is
	// still recorded.
	if err := h.db.WithContext(context.WithoutCancel(ctx)).Save(&job).Error; err != nil {
		return fmt.Errorf("saving job result: %w", err)
	}
	h.observe(TypeGenerateCards, result, time.Since(start))

	if runErr != nil {
		return fmt.Errorf("generation job %s: %v: %w", job.ID, runErr, asynq.SkipRetry)
	}
	return nil
}

// progress mirrors session progress onto the job row so clients can poll it.
func (h *Handler) progress(ctx context.Context, job *models.GenerationJob, logger *slog.Logger) func(generation.Progress) {
	return func(p generation.Progress) {
		err := h.db.WithContext(ctx).Model(&models.GenerationJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"state":      string(p.State),
				"batches":    p.Batch,
				"generated":  p.Generated,
				"target":     p.Target,
				"updated_at": time.Now(),
			}).Error
		if err != nil {
			logger.Warn("failed to record generation progress", "error", err)
		}
	}
}

// HandlePurgeGenerations deletes finished jobs older than the retention
// window. Queued and running jobs are never touched.
func (h *Handler) HandlePurgeGenerations(ctx context.Context, t *asynq.Task) error {
	start := time.Now()
	cutoff := start.Add(-h.retention)

	result := h.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", cutoff, []models.GenerationStatus{
			models.GenerationStatusReady,
			models.GenerationStatusFailed,
			models.GenerationStatusSaved,
		}).
		Delete(&models.GenerationJob{})
	if result.Error != nil {
		h.observe(TypePurgeGenerations, "failed", time.Since(start))
		return fmt.Errorf("purging generation jobs: %w", result.Error)
	}

	h.logger.Info("purged generation jobs", "deleted", result.RowsAffected, "cutoff", cutoff)
	h.observe(TypePurgeGenerations, "done", time.Since(start))
	return nil
}

func (h *Handler) observe(jobType, result string, d time.Duration) {
	if h.metrics != nil {
		h.metrics.ObserveJob(jobType, result, d)
	}
}
