package generation

import (
	"strings"

	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/richtext"
)

// NormalizeTitle is the dedup key: lowercase, trimmed, inner whitespace
// collapsed.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// titleSet tracks normalized titles seen during a session.
type titleSet map[string]struct{}

// add reports whether title was new.
func (s titleSet) add(title string) bool {
	key := NormalizeTitle(title)
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

// Dedup keeps the first card for each normalized title.
func Dedup(cards []models.GeneratedCard) []models.GeneratedCard {
	seen := make(titleSet, len(cards))
	out := make([]models.GeneratedCard, 0, len(cards))
	for _, c := range cards {
		if seen.add(c.Title) {
			out = append(out, c)
		}
	}
	return out
}

// MissingItems returns the list items not mentioned in any card's title or
// text, compared case-insensitively.
func MissingItems(items []string, cards []models.GeneratedCard) []string {
	corpus := make([]string, len(cards))
	for i, c := range cards {
		corpus[i] = strings.ToLower(c.Title + " " + richtext.PlainText(c.Content))
	}

	var missing []string
	for _, item := range items {
		needle := strings.ToLower(strings.TrimSpace(item))
		covered := false
		for _, text := range corpus {
			if strings.Contains(text, needle) {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, item)
		}
	}
	return missing
}
