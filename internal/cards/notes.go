package cards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/pkg/crypto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNoteNotFound = errors.New("note not found")

// NoteService stores private per-card notes encrypted at rest.
type NoteService struct {
	db        *gorm.DB
	cards     *Service
	encryptor *crypto.Encryptor
}

func NewNoteService(db *gorm.DB, cards *Service, encryptor *crypto.Encryptor) *NoteService {
	return &NoteService{db: db, cards: cards, encryptor: encryptor}
}

func (s *NoteService) Get(ctx context.Context, userID, cardID uuid.UUID) (string, error) {
	if _, err := s.cards.Get(ctx, userID, cardID); err != nil {
		return "", err
	}

	var note models.CardNote
	err := s.db.WithContext(ctx).Where("card_id = ? AND user_id = ?", cardID, userID).First(&note).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoteNotFound
		}
		return "", fmt.Errorf("loading note: %w", err)
	}

	plaintext, err := s.encryptor.DecryptString(note.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypting note: %w", err)
	}
	return plaintext, nil
}

// Put creates or replaces the note.
func (s *NoteService) Put(ctx context.Context, userID, cardID uuid.UUID, text string) error {
	if _, err := s.cards.Get(ctx, userID, cardID); err != nil {
		return err
	}

	ciphertext, err := s.encryptor.EncryptString(text)
	if err != nil {
		return fmt.Errorf("encrypting note: %w", err)
	}

	note := models.CardNote{CardID: cardID, UserID: userID, Ciphertext: ciphertext}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "card_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ciphertext", "updated_at"}),
	}).Create(&note).Error
	if err != nil {
		return fmt.Errorf("saving note: %w", err)
	}
	return nil
}
