package cards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/medpocket/internal/cache"
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/richtext"
	"gorm.io/gorm"
)

var (
	ErrCardNotFound   = errors.New("card not found")
	ErrInvalidUrgency = errors.New("invalid urgency")
)

const publicCardsKey = "cards:public"

// Service is the card store. Every read and write is scoped to the calling
// user; a card owned by someone else is indistinguishable from a missing one.
type Service struct {
	db        *gorm.DB
	cache     *cache.Client
	publicTTL time.Duration
	logger    *slog.Logger
}

func NewService(db *gorm.DB, cache *cache.Client, publicTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, cache: cache, publicTTL: publicTTL, logger: logger}
}

// CardInput is the full set of user-editable fields.
type CardInput struct {
	Specialty   string
	Sections    []string
	Title       types.LocalizedText
	Content     types.LocalizedText
	Tags        []string
	Urgency     types.Urgency
	References  []types.Reference
	AIGenerated bool
	AISources   []string
}

// CardPatch carries only the fields an update touches. Ownership is not
// patchable.
type CardPatch struct {
	Specialty   *string
	Sections    *[]string
	Title       *types.LocalizedText
	Content     *types.LocalizedText
	Tags        *[]string
	Urgency     *types.Urgency
	References  *[]types.Reference
	AIGenerated *bool
	AISources   *[]string
}

type ListOptions struct {
	Specialty string
	Section   string
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.MedicalCard, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if opts.Specialty != "" {
		query = query.Where("specialty = ?", opts.Specialty)
	}

	var cards []models.MedicalCard
	if err := query.Order("created_at DESC").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}

	// Sections are a JSON list, so the section filter runs after decoding.
	if opts.Section != "" {
		cards = slices.DeleteFunc(cards, func(c models.MedicalCard) bool {
			return !slices.Contains(c.Sections, opts.Section)
		})
	}
	return cards, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.MedicalCard, error) {
	var card models.MedicalCard
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("loading card: %w", err)
	}
	return &card, nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CardInput) (*models.MedicalCard, error) {
	card, err := newCard(userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(card).Error; err != nil {
		return nil, fmt.Errorf("creating card: %w", err)
	}
	s.invalidatePublic(ctx)
	return card, nil
}

// CreateMany inserts several cards in one transaction.
func (s *Service) CreateMany(ctx context.Context, userID uuid.UUID, inputs []CardInput) ([]models.MedicalCard, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	created := make([]models.MedicalCard, 0, len(inputs))
	for _, in := range inputs {
		card, err := newCard(userID, in)
		if err != nil {
			return nil, err
		}
		created = append(created, *card)
	}

	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, fmt.Errorf("creating cards: %w", err)
	}
	s.invalidatePublic(ctx)
	return created, nil
}

func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, patch CardPatch) (*models.MedicalCard, error) {
	card, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := applyPatch(card, patch); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Save(card).Error; err != nil {
		return nil, fmt.Errorf("updating card: %w", err)
	}
	s.invalidatePublic(ctx)
	return card, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.MedicalCard{})
	if result.Error != nil {
		return fmt.Errorf("deleting card: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCardNotFound
	}
	if err := s.db.WithContext(ctx).Where("card_id = ?", id).Delete(&models.CardNote{}).Error; err != nil {
		s.logger.Warn("failed to delete card notes", "card_id", id, "error", err)
	}
	s.invalidatePublic(ctx)
	return nil
}

// MakePublic marks one of the caller's cards as publicly listed.
func (s *Service) MakePublic(ctx context.Context, userID, id uuid.UUID) (*models.MedicalCard, error) {
	card, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(card).Update("is_public", true).Error; err != nil {
		return nil, fmt.Errorf("publishing card: %w", err)
	}
	card.IsPublic = true
	s.invalidatePublic(ctx)
	return card, nil
}

// ListPublic returns every public card, newest first. Results are cached.
func (s *Service) ListPublic(ctx context.Context) ([]models.MedicalCard, error) {
	var cards []models.MedicalCard
	if s.cache.GetJSON(ctx, publicCardsKey, &cards) {
		return cards, nil
	}

	if err := s.db.WithContext(ctx).Where("is_public = ?", true).Order("created_at DESC").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("listing public cards: %w", err)
	}
	s.logger.Debug("public cards loaded from database", "count", len(cards))
	s.cache.SetJSON(ctx, publicCardsKey, cards, s.publicTTL)
	return cards, nil
}

func (s *Service) invalidatePublic(ctx context.Context) {
	s.cache.Delete(ctx, publicCardsKey)
}

func newCard(userID uuid.UUID, in CardInput) (*models.MedicalCard, error) {
	urgency := in.Urgency
	if urgency == "" {
		urgency = types.UrgencyStandard
	}
	if !urgency.Valid() {
		return nil, ErrInvalidUrgency
	}

	sections := in.Sections
	if len(sections) == 0 {
		sections = []string{types.SectionConsultations}
	}

	return &models.MedicalCard{
		UserID:      userID,
		Specialty:   in.Specialty,
		Sections:    sections,
		Title:       in.Title,
		Content:     in.Content.Map(richtext.Sanitize),
		Tags:        nonNil(in.Tags),
		Urgency:     urgency,
		References:  nonNil(in.References),
		AIGenerated: in.AIGenerated,
		AISources:   nonNil(in.AISources),
	}, nil
}

func applyPatch(card *models.MedicalCard, p CardPatch) error {
	if p.Urgency != nil {
		if !p.Urgency.Valid() {
			return ErrInvalidUrgency
		}
		card.Urgency = *p.Urgency
	}
	if p.Specialty != nil {
		card.Specialty = *p.Specialty
	}
	if p.Sections != nil && len(*p.Sections) > 0 {
		card.Sections = *p.Sections
	}
	if p.Title != nil {
		card.Title = *p.Title
	}
	if p.Content != nil {
		card.Content = p.Content.Map(richtext.Sanitize)
	}
	if p.Tags != nil {
		card.Tags = nonNil(*p.Tags)
	}
	if p.References != nil {
		card.References = nonNil(*p.References)
	}
	if p.AIGenerated != nil {
		card.AIGenerated = *p.AIGenerated
	}
	if p.AISources != nil {
		card.AISources = nonNil(*p.AISources)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ToCard converts a stored card to its wire form.
func ToCard(m models.MedicalCard) types.Card {
	return types.Card{
		ID:          m.ID.String(),
		UserID:      m.UserID.String(),
		Specialty:   m.Specialty,
		Sections:    nonNil(m.Sections),
		Title:       m.Title,
		Content:     m.Content,
		Tags:        nonNil(m.Tags),
		Urgency:     m.Urgency,
		References:  nonNil(m.References),
		AIGenerated: m.AIGenerated,
		AISources:   m.AISources,
		IsPublic:    m.IsPublic,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func ToCards(ms []models.MedicalCard) []types.Card {
	out := make([]types.Card, len(ms))
	for i, m := range ms {
		out[i] = ToCard(m)
	}
	return out
}
