package models

import (
	"github.com/google/uuid"
	"github.com/hugh/medpocket/internal/cards/types"
)

type MedicalCard struct {
	Base
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Specialty string    `gorm:"index" json:"specialty"`

	// Stored as JSON so the plain/localized distinction survives.
	Sections []string            `gorm:"serializer:json" json:"sections"`
	Title    types.LocalizedText `gorm:"serializer:json" json:"title"`
	Content  types.LocalizedText `gorm:"serializer:json" json:"content"`
	Tags     []string            `gorm:"serializer:json" json:"tags"`

	Urgency     types.Urgency     `gorm:"default:'standard'" json:"urgency"`
	References  []types.Reference `gorm:"serializer:json" json:"references"`
	AIGenerated bool              `gorm:"default:false;index" json:"ai_generated"`
	AISources   []string          `gorm:"serializer:json" json:"ai_sources"`
	IsPublic    bool              `gorm:"default:false;index" json:"is_public"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (MedicalCard) TableName() string {
	return "medical_cards"
}

// CardNote is a private per-user note on a card, sealed with age.
type CardNote struct {
	Base
	CardID     uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_card_notes_card_user;not null" json:"card_id"`
	UserID     uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_card_notes_card_user;not null" json:"user_id"`
	Ciphertext string    `gorm:"type:text;not null" json:"-"`

	Card *MedicalCard `gorm:"foreignKey:CardID;constraint:OnDelete:CASCADE" json:"-"`
}

func (CardNote) TableName() string {
	return "card_notes"
}
