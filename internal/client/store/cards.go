package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/medpocket/internal/cards/filter"
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/client"
)

var ErrCardNotFound = errors.New("card not found")

const (
	localIDPrefix = "local-"
	maxRecents    = 10
	recentShown   = 5
)

// CardAPI is the slice of the REST client the card store needs.
type CardAPI interface {
	ListCards(ctx context.Context, q client.CardQuery) ([]types.Card, error)
	CreateCard(ctx context.Context, card types.Card) (types.Card, error)
	UpdateCard(ctx context.Context, id string, patch client.CardPatch) (types.Card, error)
	DeleteCard(ctx context.Context, id string) error
}

// SyncStatus says whether a mutation reached the server.
type SyncStatus int

const (
	SyncPersisted SyncStatus = iota
	SyncLocalOnly
)

func (s SyncStatus) String() string {
	if s == SyncLocalOnly {
		return "local-only"
	}
	return "persisted"
}

// SaveResult is the outcome of a create or update. Err holds the server
// failure that forced a local-only change.
type SaveResult struct {
	Card types.Card
	Sync SyncStatus
	Err  error
}

type cardState struct {
	cards     []types.Card
	trash     []types.Card
	favorites []string
	recents   []string
}

func (st cardState) clone() cardState {
	return cardState{
		cards:     slices.Clone(st.cards),
		trash:     slices.Clone(st.trash),
		favorites: slices.Clone(st.favorites),
		recents:   slices.Clone(st.recents),
	}
}

// CardStore holds the user's cards plus the client-only trash, favorites and
// recents. When the server is unreachable, create/update/delete still apply
// locally and report SyncLocalOnly. Cards created offline get a "local-" id
// and never reach the server.
type CardStore struct {
	api     CardAPI
	storage Storage
	logger  *slog.Logger
	now     func() time.Time

	mu sync.RWMutex
	st cardState
}

func NewCardStore(api CardAPI, storage Storage, logger *slog.Logger) *CardStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CardStore{api: api, storage: storage, logger: logger, now: time.Now}
}

// Load reads the local mirror, then refreshes the active cards from the
// server. Trashed ids stay out of the active list and offline-created cards
// are kept.
func (s *CardStore) Load(ctx context.Context) (SyncStatus, error) {
	var st cardState
	for key, dst := range map[string]interface{}{
		KeyCards:     &st.cards,
		KeyTrash:     &st.trash,
		KeyFavorites: &st.favorites,
		KeyRecents:   &st.recents,
	} {
		if _, err := loadJSON(ctx, s.storage, key, dst); err != nil {
			return SyncLocalOnly, err
		}
	}

	status := SyncPersisted
	remote, err := s.api.ListCards(ctx, client.CardQuery{})
	switch {
	case err == nil:
		trashed := make(map[string]bool, len(st.trash))
		for _, c := range st.trash {
			trashed[c.ID] = true
		}
		merged := make([]types.Card, 0, len(remote))
		for _, c := range st.cards {
			if isLocal(c.ID) {
				merged = append(merged, c)
			}
		}
		for _, c := range remote {
			if !trashed[c.ID] {
				merged = append(merged, c)
			}
		}
		st.cards = merged
	case client.IsUnavailable(err):
		s.logger.Warn("server unavailable, using local cards", "error", err)
		status = SyncLocalOnly
	default:
		return SyncLocalOnly, fmt.Errorf("list cards: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, st); err != nil {
		return status, err
	}
	s.st = st
	return status, nil
}

func (s *CardStore) Add(ctx context.Context, card types.Card) (SaveResult, error) {
	if card.Urgency == "" {
		card.Urgency = types.UrgencyStandard
	}
	if card.Sections == nil {
		card.Sections = []string{}
	}
	if card.Tags == nil {
		card.Tags = []string{}
	}

	res := SaveResult{Sync: SyncPersisted}
	created, err := s.api.CreateCard(ctx, card)
	switch {
	case err == nil:
		res.Card = created
	case client.IsUnavailable(err):
		now := s.now()
		card.ID = localIDPrefix + uuid.New().String()
		card.CreatedAt, card.UpdatedAt = now, now
		res = SaveResult{Card: card, Sync: SyncLocalOnly, Err: err}
	default:
		return SaveResult{}, err
	}

	return res, s.apply(ctx, func(st *cardState) error {
		st.cards = slices.Insert(st.cards, 0, res.Card)
		return nil
	})
}

func (s *CardStore) Update(ctx context.Context, id string, patch client.CardPatch) (SaveResult, error) {
	current, ok := s.Card(id)
	if !ok {
		return SaveResult{}, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}

	res := SaveResult{Sync: SyncLocalOnly}
	if isLocal(id) {
		patch.Apply(&current)
		current.UpdatedAt = s.now()
		res.Card = current
	} else {
		updated, err := s.api.UpdateCard(ctx, id, patch)
		switch {
		case err == nil:
			res = SaveResult{Card: updated, Sync: SyncPersisted}
		case client.IsUnavailable(err):
			patch.Apply(&current)
			current.UpdatedAt = s.now()
			res = SaveResult{Card: current, Sync: SyncLocalOnly, Err: err}
		default:
			return SaveResult{}, err
		}
	}

	return res, s.apply(ctx, func(st *cardState) error {
		i := cardIndex(st.cards, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrCardNotFound, id)
		}
		st.cards[i] = res.Card
		return nil
	})
}

// Delete removes an active card for good, server copy included.
func (s *CardStore) Delete(ctx context.Context, id string) (SyncStatus, error) {
	if _, ok := s.Card(id); !ok {
		return SyncLocalOnly, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}
	status, err := s.deleteRemote(ctx, id)
	if err != nil {
		return status, err
	}
	return status, s.apply(ctx, func(st *cardState) error {
		st.cards = removeCard(st.cards, id)
		st.favorites = removeID(st.favorites, id)
		st.recents = removeID(st.recents, id)
		return nil
	})
}

// Trash moves a card to the client-side trash and unfavorites it.
func (s *CardStore) Trash(ctx context.Context, id string) error {
	return s.apply(ctx, func(st *cardState) error {
		i := cardIndex(st.cards, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrCardNotFound, id)
		}
		card := st.cards[i]
		at := s.now()
		card.TrashedAt = &at

		st.cards = slices.Delete(st.cards, i, i+1)
		st.trash = slices.Insert(st.trash, 0, card)
		st.favorites = removeID(st.favorites, id)
		return nil
	})
}

func (s *CardStore) Restore(ctx context.Context, id string) error {
	return s.apply(ctx, func(st *cardState) error {
		i := cardIndex(st.trash, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrCardNotFound, id)
		}
		card := st.trash[i]
		card.TrashedAt = nil

		st.trash = slices.Delete(st.trash, i, i+1)
		st.cards = slices.Insert(st.cards, 0, card)
		return nil
	})
}

// PermanentlyDelete drops a trashed card and deletes it on the server.
func (s *CardStore) PermanentlyDelete(ctx context.Context, id string) (SyncStatus, error) {
	s.mu.RLock()
	found := cardIndex(s.st.trash, id) >= 0
	s.mu.RUnlock()
	if !found {
		return SyncLocalOnly, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}

	status, err := s.deleteRemote(ctx, id)
	if err != nil {
		return status, err
	}
	return status, s.apply(ctx, func(st *cardState) error {
		st.trash = removeCard(st.trash, id)
		st.favorites = removeID(st.favorites, id)
		st.recents = removeID(st.recents, id)
		return nil
	})
}

// EmptyTrash permanently deletes every trashed card. The status is
// SyncLocalOnly if any server delete failed.
func (s *CardStore) EmptyTrash(ctx context.Context) (SyncStatus, error) {
	status := SyncPersisted
	for _, c := range s.Trashed() {
		st, err := s.PermanentlyDelete(ctx, c.ID)
		if err != nil {
			return status, err
		}
		if st == SyncLocalOnly {
			status = SyncLocalOnly
		}
	}
	return status, nil
}

func (s *CardStore) deleteRemote(ctx context.Context, id string) (SyncStatus, error) {
	if isLocal(id) {
		return SyncLocalOnly, nil
	}
	err := s.api.DeleteCard(ctx, id)
	switch {
	case err == nil, errors.Is(err, client.ErrNotFound):
		return SyncPersisted, nil
	case client.IsUnavailable(err):
		s.logger.Warn("server unavailable, deleting locally", "card_id", id, "error", err)
		return SyncLocalOnly, nil
	default:
		return SyncLocalOnly, err
	}
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *CardStore) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var favorite bool
	err := s.apply(ctx, func(st *cardState) error {
		if slices.Contains(st.favorites, id) {
			st.favorites = removeID(st.favorites, id)
			return nil
		}
		st.favorites = slices.Insert(st.favorites, 0, id)
		favorite = true
		return nil
	})
	return favorite, err
}

func (s *CardStore) IsFavorite(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.st.favorites, id)
}

// FavoriteCards returns favorited active cards, most recently favorited first.
func (s *CardStore) FavoriteCards() []types.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(s.st.favorites, len(s.st.favorites))
}

// TrackRecent moves id to the front of the recent list.
func (s *CardStore) TrackRecent(ctx context.Context, id string) error {
	return s.apply(ctx, func(st *cardState) error {
		st.recents = slices.Insert(removeID(st.recents, id), 0, id)
		if len(st.recents) > maxRecents {
			st.recents = st.recents[:maxRecents]
		}
		return nil
	})
}

// RecentCards returns up to five recently viewed cards that still exist.
func (s *CardStore) RecentCards() []types.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(s.st.recents, recentShown)
}

func (s *CardStore) resolve(ids []string, limit int) []types.Card {
	out := make([]types.Card, 0, limit)
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		if i := cardIndex(s.st.cards, id); i >= 0 {
			out = append(out, s.st.cards[i])
		}
	}
	return out
}

func (s *CardStore) Cards() []types.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.cards)
}

func (s *CardStore) Trashed() []types.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.trash)
}

func (s *CardStore) Card(id string) (types.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := cardIndex(s.st.cards, id); i >= 0 {
		return s.st.cards[i], true
	}
	return types.Card{}, false
}

func (s *CardStore) CardsBySection(specialty, section string) []types.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Card
	for _, c := range s.st.cards {
		if c.Specialty == specialty && c.HasSection(section) {
			out = append(out, c)
		}
	}
	return out
}

// Filter runs the filter pipeline over the active cards with the store's
// favorites filled in.
func (s *CardStore) Filter(spec filter.Spec) []types.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec.Favorites = make(map[string]bool, len(s.st.favorites))
	for _, id := range s.st.favorites {
		spec.Favorites[id] = true
	}
	return filter.Apply(s.st.cards, spec)
}

// apply runs fn on a copy of the state and commits it once persisted.
func (s *CardStore) apply(ctx context.Context, fn func(*cardState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.save(ctx, next); err != nil {
		return err
	}
	s.st = next
	return nil
}

func (s *CardStore) save(ctx context.Context, st cardState) error {
	nonNil := func(v []string) []string {
		if v == nil {
			return []string{}
		}
		return v
	}
	cards, trash := st.cards, st.trash
	if cards == nil {
		cards = []types.Card{}
	}
	if trash == nil {
		trash = []types.Card{}
	}

	if err := saveJSON(ctx, s.storage, KeyCards, cards); err != nil {
		return err
	}
	if err := saveJSON(ctx, s.storage, KeyTrash, trash); err != nil {
		return err
	}
	if err := saveJSON(ctx, s.storage, KeyFavorites, nonNil(st.favorites)); err != nil {
		return err
	}
	return saveJSON(ctx, s.storage, KeyRecents, nonNil(st.recents))
}

func isLocal(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

func cardIndex(cards []types.Card, id string) int {
	return slices.IndexFunc(cards, func(c types.Card) bool { return c.ID == id })
}

func removeCard(cards []types.Card, id string) []types.Card {
	return slices.DeleteFunc(cards, func(c types.Card) bool { return c.ID == id })
}

func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}
