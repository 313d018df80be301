package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hugh/medpocket/internal/api/dto"
	"github.com/hugh/medpocket/internal/api/middleware"
	"github.com/hugh/medpocket/internal/cards"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/generation"
	"github.com/hugh/medpocket/internal/llm"
	"github.com/hugh/medpocket/internal/tasks"
	"gorm.io/gorm"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type AIHandler struct {
	client   llm.ChatCompleter
	genCfg   generation.Config
	recorder generation.Recorder
	db       *gorm.DB
	cards    *cards.Service
	queue    Enqueuer
	logger   *slog.Logger
}

type AIHandlerConfig struct {
	Client     llm.ChatCompleter
	Generation generation.Config
	Recorder   generation.Recorder
	DB         *gorm.DB
	Cards      *cards.Service
	Queue      Enqueuer // nil disables background jobs
	Logger     *slog.Logger
}

func NewAIHandler(cfg AIHandlerConfig) *AIHandler {
	return &AIHandler{
		client:   cfg.Client,
		genCfg:   cfg.Generation,
		recorder: cfg.Recorder,
		db:       cfg.DB,
		cards:    cfg.Cards,
		queue:    cfg.Queue,
		logger:   cfg.Logger,
	}
}

// Chat proxies one conversation to the configured provider.
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req dto.ChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	content, err := h.client.Chat(r.Context(), req.ToLLM())
	if err != nil {
		h.writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ChatResponse{Content: content})
}

// Generate runs a whole generation session within the request.
func (h *AIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session := generation.NewSession(h.client, h.genCfg, generation.Hooks{Recorder: h.recorder},
		h.logger.With("user_id", middleware.GetUserID(r.Context())))

	res, err := session.Run(r.Context(), generation.Request{
		Prompt:   req.Prompt,
		Document: req.Document,
		Section:  req.Section,
	})
	if err != nil {
		if errors.Is(err, generation.ErrEmptyRequest) {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Validation failed",
				Details: map[string]string{"prompt": "Prompt or document is required"},
			})
			return
		}
		h.writeProviderError(w, err)
		return
	}

	resp := dto.GenerateResponse{
		State:   string(res.State),
		Mode:    string(res.Mode),
		Cards:   res.Cards,
		Target:  res.Target,
		Batches: res.Batches,
		Errors:  res.BatchErrors,
	}
	if res.Err != nil {
		resp.Error = providerMessage(res.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateJob queues a generation session on the worker.
func (h *AIHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "Background generation is unavailable")
		return
	}

	var req dto.GenerateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	job := models.GenerationJob{
		UserID:    userID,
		Status:    models.GenerationStatusQueued,
		State:     string(generation.StateIdle),
		Specialty: req.Specialty,
		Section:   req.Section,
		Prompt:    req.Prompt,
		Document:  req.Document,
		Cards:     []models.GeneratedCard{},
	}
	if err := h.db.WithContext(r.Context()).Create(&job).Error; err != nil {
		h.logger.Error("creating generation job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create generation job")
		return
	}

	task, err := tasks.NewGenerateCardsTask(tasks.GenerateCardsPayload{JobID: job.ID, UserID: userID})
	if err == nil {
		_, err = h.queue.EnqueueContext(r.Context(), task)
	}
	if err != nil {
		h.logger.Error("enqueueing generation job failed", "error", err, "job_id", job.ID)
		job.Status = models.GenerationStatusFailed
		job.Error = "enqueue failed"
		h.db.WithContext(r.Context()).Save(&job)
		writeError(w, http.StatusInternalServerError, "Failed to enqueue generation job")
		return
	}

	writeJSON(w, http.StatusAccepted, dto.ToGenerationJobResponse(&job))
}

func (h *AIHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dto.ToGenerationJobResponse(job))
}

// SaveJob persists the selected previews of a ready job as cards.
func (h *AIHandler) SaveJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	var req dto.SaveGeneratedRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if job.Status != models.GenerationStatusReady {
		writeError(w, http.StatusConflict, "Generation job is not ready")
		return
	}

	selected, err := generation.Select(job.Cards, req.Indexes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"indexes": err.Error()},
		})
		return
	}

	userID := middleware.GetUserID(r.Context())
	created, err := h.cards.CreateMany(r.Context(), userID, cards.FromGeneratedAll(selected, job.Specialty))
	if err != nil {
		h.logger.Error("saving generated cards failed", "error", err, "job_id", job.ID)
		writeError(w, http.StatusInternalServerError, "Failed to save cards")
		return
	}

	job.Status = models.GenerationStatusSaved
	job.State = string(generation.StateIdle)
	for _, c := range created {
		job.SavedCardIDs = append(job.SavedCardIDs, c.ID)
	}
	if err := h.db.WithContext(r.Context()).Save(job).Error; err != nil {
		h.logger.Error("updating generation job failed", "error", err, "job_id", job.ID)
	}

	writeJSON(w, http.StatusCreated, dto.SaveGeneratedResponse{
		Cards: cards.ToCards(created),
		Job:   dto.ToGenerationJobResponse(job),
	})
}

func (h *AIHandler) loadJob(w http.ResponseWriter, r *http.Request) (*models.GenerationJob, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Generation job not found")
		return nil, false
	}

	var job models.GenerationJob
	err := h.db.WithContext(r.Context()).
		Where("id = ? AND user_id = ?", id, middleware.GetUserID(r.Context())).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Generation job not found")
			return nil, false
		}
		h.logger.Error("loading generation job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load generation job")
		return nil, false
	}
	return &job, true
}

// writeProviderError passes the upstream message through, as the chat
// client shows it to the user verbatim.
func (h *AIHandler) writeProviderError(w http.ResponseWriter, err error) {
	h.logger.Error("llm call failed", "error", err)
	writeError(w, http.StatusInternalServerError, providerMessage(err))
}

func providerMessage(err error) string {
	var pe *llm.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	if errors.Is(err, llm.ErrMissingAPIKey) {
		return llm.ErrMissingAPIKey.Error()
	}
	return err.Error()
}
