package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hugh/medpocket/internal/api/dto"
	"github.com/hugh/medpocket/internal/api/middleware"
	"github.com/hugh/medpocket/internal/cards"
	"github.com/hugh/medpocket/internal/cards/filter"
)

type CardHandler struct {
	cards  *cards.Service
	notes  *cards.NoteService
	logger *slog.Logger
}

func NewCardHandler(cardService *cards.Service, notes *cards.NoteService, logger *slog.Logger) *CardHandler {
	return &CardHandler{cards: cardService, notes: notes, logger: logger}
}

// List returns the caller's cards. Query parameters mirror filter.Spec:
// q, tags and sections (comma separated), specialty, ai (true|false),
// sort (title|date|ai) and lang. The legacy section parameter narrows by a
// single section before filtering.
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := middleware.GetUserID(r.Context())

	stored, err := h.cards.List(r.Context(), userID, cards.ListOptions{
		Specialty: q.Get("specialty"),
		Section:   q.Get("section"),
	})
	if err != nil {
		h.logger.Error("listing cards failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "Failed to list cards")
		return
	}

	spec := filter.Spec{
		Query:    q.Get("q"),
		Tags:     splitParam(q.Get("tags")),
		Sections: splitParam(q.Get("sections")),
		Sort:     filter.SortKey(q.Get("sort")),
		Lang:     q.Get("lang"),
	}
	if raw := q.Get("ai"); raw != "" {
		ai, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Validation failed",
				Details: map[string]string{"ai": "Ai must be true or false"},
			})
			return
		}
		spec.AIGenerated = &ai
	}

	writeJSON(w, http.StatusOK, filter.Apply(cards.ToCards(stored), spec))
}

func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	card, err := h.cards.Create(r.Context(), middleware.GetUserID(r.Context()), req.Input())
	if err != nil {
		h.writeCardError(w, err, "Failed to create card")
		return
	}

	writeJSON(w, http.StatusCreated, cards.ToCard(*card))
}

func (h *CardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}

	var req dto.UpdateCardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	card, err := h.cards.Update(r.Context(), middleware.GetUserID(r.Context()), id, req.Patch())
	if err != nil {
		h.writeCardError(w, err, "Failed to update card")
		return
	}

	writeJSON(w, http.StatusOK, cards.ToCard(*card))
}

func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}

	if err := h.cards.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		h.writeCardError(w, err, "Failed to delete card")
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Card deleted successfully"})
}

// GetNote returns an empty note when none has been written yet.
func (h *CardHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}

	note, err := h.notes.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil && !errors.Is(err, cards.ErrNoteNotFound) {
		h.writeCardError(w, err, "Failed to load note")
		return
	}

	writeJSON(w, http.StatusOK, dto.NoteResponse{Note: note})
}

func (h *CardHandler) PutNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}

	var req dto.NoteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.notes.Put(r.Context(), middleware.GetUserID(r.Context()), id, req.Note); err != nil {
		h.writeCardError(w, err, "Failed to save note")
		return
	}

	writeJSON(w, http.StatusOK, dto.NoteResponse{Note: req.Note})
}

// ListPublic needs no session.
func (h *CardHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	public, err := h.cards.ListPublic(r.Context())
	if err != nil {
		h.logger.Error("listing public cards failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list public cards")
		return
	}
	writeJSON(w, http.StatusOK, cards.ToCards(public))
}

func (h *CardHandler) MakePublic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}

	card, err := h.cards.MakePublic(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		h.writeCardError(w, err, "Failed to publish card")
		return
	}

	writeJSON(w, http.StatusOK, cards.ToCard(*card))
}

func (h *CardHandler) writeCardError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, cards.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "Card not found")
	case errors.Is(err, cards.ErrInvalidUrgency):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"urgency": "Urgency must be one of standard, high, urgent"},
		})
	default:
		h.logger.Error(strings.ToLower(fallback), "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
