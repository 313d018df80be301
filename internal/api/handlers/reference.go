package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/medpocket/internal/api/dto"
	"github.com/hugh/medpocket/internal/api/middleware"
	"github.com/hugh/medpocket/internal/database/models"
	"gorm.io/gorm"
)

// ReferenceHandler serves the simple lookup records: templates (shared),
// entries (per user), categories and links.
type ReferenceHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewReferenceHandler(db *gorm.DB, logger *slog.Logger) *ReferenceHandler {
	return &ReferenceHandler{db: db, logger: logger}
}

func (h *ReferenceHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	query := h.db.WithContext(r.Context()).Order("name ASC")
	if specialty := r.URL.Query().Get("specialty"); specialty != "" {
		query = query.Where("specialty = ? OR specialty = ''", specialty)
	}

	templates := []models.Template{}
	if err := query.Find(&templates).Error; err != nil {
		h.logger.Error("listing templates failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *ReferenceHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTemplateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	fields := req.Fields
	if fields == nil {
		fields = []string{}
	}
	template := models.Template{
		Name:      req.Name,
		Specialty: req.Specialty,
		Section:   req.Section,
		Content:   req.Content,
		Fields:    fields,
		CreatedBy: middleware.GetUserID(r.Context()),
	}
	if err := h.db.WithContext(r.Context()).Create(&template).Error; err != nil {
		h.logger.Error("creating template failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}
	writeJSON(w, http.StatusCreated, template)
}

func (h *ReferenceHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries := []models.Entry{}
	err := h.db.WithContext(r.Context()).
		Where("user_id = ?", middleware.GetUserID(r.Context())).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		h.logger.Error("listing entries failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ReferenceHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEntryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	entry := models.Entry{
		UserID:    middleware.GetUserID(r.Context()),
		Title:     req.Title,
		Specialty: req.Specialty,
		Data:      req.Data,
	}
	if entry.Data == nil {
		entry.Data = map[string]string{}
	}

	if req.TemplateID != "" {
		templateID, _ := uuid.Parse(req.TemplateID)
		var template models.Template
		if err := h.db.WithContext(r.Context()).First(&template, "id = ?", templateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(w, http.StatusBadRequest, "Template not found")
				return
			}
			h.logger.Error("loading template failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to create entry")
			return
		}
		entry.TemplateID = &templateID
	}

	if err := h.db.WithContext(r.Context()).Create(&entry).Error; err != nil {
		h.logger.Error("creating entry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create entry")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *ReferenceHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := []models.Category{}
	if err := h.db.WithContext(r.Context()).Order("position ASC, name ASC").Find(&categories).Error; err != nil {
		h.logger.Error("listing categories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *ReferenceHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	query := h.db.WithContext(r.Context()).Order("position ASC, name ASC")
	if specialty := r.URL.Query().Get("specialty"); specialty != "" {
		query = query.Where("specialty = ?", specialty)
	}

	links := []models.Link{}
	if err := query.Find(&links).Error; err != nil {
		h.logger.Error("listing links failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list links")
		return
	}
	writeJSON(w, http.StatusOK, links)
}
