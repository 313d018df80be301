package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hugh/medpocket/internal/cards/types"
)

var (
	ErrSpecialtyNotFound = errors.New("specialty not found")
	ErrSpecialtyExists   = errors.New("specialty already exists")
	ErrInvalidSpecialty  = errors.New("specialty id and name are required")
)

// SpecialtyStore edits the specialty configuration. Every mutation pushes a
// deep copy of the previous configuration so Undo can restore it wholesale.
type SpecialtyStore struct {
	storage Storage

	mu      sync.Mutex
	items   []types.Specialty
	history [][]types.Specialty
}

func NewSpecialtyStore(storage Storage) *SpecialtyStore {
	return &SpecialtyStore{storage: storage, items: cloneSpecialties(types.DefaultSpecialties())}
}

// Load reads the saved configuration, keeping the defaults when none is saved.
func (s *SpecialtyStore) Load(ctx context.Context) error {
	var saved []types.Specialty
	found, err := loadJSON(ctx, s.storage, KeySpecialties, &saved)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if found {
		s.items = saved
	} else {
		s.items = cloneSpecialties(types.DefaultSpecialties())
	}
	s.history = nil
	return nil
}

func (s *SpecialtyStore) List() []types.Specialty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSpecialties(s.items)
}

func (s *SpecialtyStore) Get(id string) (types.Specialty, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.items, id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return types.Specialty{}, false
}

// Add appends a specialty. Missing sections default to the standard seven.
func (s *SpecialtyStore) Add(ctx context.Context, sp types.Specialty) error {
	sp.ID = strings.TrimSpace(sp.ID)
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.ID == "" || sp.Name == "" {
		return ErrInvalidSpecialty
	}
	if len(sp.Sections) == 0 {
		sp.Sections = types.DefaultSections()
	}
	if sp.Links == nil {
		sp.Links = []types.SpecialtyLink{}
	}

	return s.mutate(ctx, func(items []types.Specialty) ([]types.Specialty, error) {
		if indexOf(items, sp.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrSpecialtyExists, sp.ID)
		}
		return append(items, sp.Clone()), nil
	})
}

func (s *SpecialtyStore) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, func(items []types.Specialty) ([]types.Specialty, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrSpecialtyNotFound, id)
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

func (s *SpecialtyStore) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidSpecialty
	}
	return s.update(ctx, id, func(sp *types.Specialty) { sp.Name = name })
}

// SetSections replaces the ordered section list.
func (s *SpecialtyStore) SetSections(ctx context.Context, id string, sections []string) error {
	sections = dedupe(sections)
	return s.update(ctx, id, func(sp *types.Specialty) { sp.Sections = sections })
}

func (s *SpecialtyStore) SetLinks(ctx context.Context, id string, links []types.SpecialtyLink) error {
	links = append([]types.SpecialtyLink{}, links...)
	return s.update(ctx, id, func(sp *types.Specialty) { sp.Links = links })
}

// Undo restores the configuration from before the last mutation. It reports
// false, and changes nothing, when there is nothing to undo.
func (s *SpecialtyStore) Undo(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return false, nil
	}
	prev := s.history[len(s.history)-1]
	if err := saveJSON(ctx, s.storage, KeySpecialties, prev); err != nil {
		return false, err
	}
	s.history = s.history[:len(s.history)-1]
	s.items = prev
	return true, nil
}

func (s *SpecialtyStore) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) > 0
}

// Snapshot returns a deep copy of the current configuration.
func (s *SpecialtyStore) Snapshot() []types.Specialty {
	return s.List()
}

// Restore replaces the configuration with snap. It does not touch the undo
// history.
func (s *SpecialtyStore) Restore(ctx context.Context, snap []types.Specialty) error {
	items := cloneSpecialties(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := saveJSON(ctx, s.storage, KeySpecialties, items); err != nil {
		return err
	}
	s.items = items
	return nil
}

func (s *SpecialtyStore) update(ctx context.Context, id string, fn func(*types.Specialty)) error {
	return s.mutate(ctx, func(items []types.Specialty) ([]types.Specialty, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrSpecialtyNotFound, id)
		}
		fn(&items[i])
		return items, nil
	})
}

// mutate applies fn to a working copy. The change and its undo entry are
// kept only once the new configuration is persisted.
func (s *SpecialtyStore) mutate(ctx context.Context, fn func([]types.Specialty) ([]types.Specialty, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := cloneSpecialties(s.items)
	next, err := fn(cloneSpecialties(s.items))
	if err != nil {
		return err
	}
	if err := saveJSON(ctx, s.storage, KeySpecialties, next); err != nil {
		return err
	}

	s.history = append(s.history, before)
	s.items = next
	return nil
}

func cloneSpecialties(in []types.Specialty) []types.Specialty {
	out := make([]types.Specialty, len(in))
	for i, sp := range in {
		out[i] = sp.Clone()
	}
	return out
}

func indexOf(items []types.Specialty, id string) int {
	for i, sp := range items {
		if sp.ID == id {
			return i
		}
	}
	return -1
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
