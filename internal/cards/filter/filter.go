// Package filter narrows and orders a card list for display. It is a pure
// function of its inputs and holds no state between calls.
package filter

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/richtext"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SortKey string

const (
	SortNone  SortKey = ""
	SortTitle SortKey = "title"
	SortDate  SortKey = "date"
	SortAI    SortKey = "ai"
)

// Spec describes one filter pass. Zero values disable their axis.
type Spec struct {
	Query     string
	Tags      []string // card must carry at least one
	Sections  []string // card must be filed under at least one
	Specialty string

	// AIGenerated is tri-state: nil means either origin.
	AIGenerated *bool

	FavoritesOnly bool
	Favorites     map[string]bool

	Sort SortKey
	Lang string
}

// Apply runs the fuzzy pre-filter, then the discrete filters (combined with
// AND), then the sort. The input slice is never modified.
func Apply(cards []types.Card, spec Spec) []types.Card {
	query := strings.TrimSpace(spec.Query)

	out := make([]types.Card, 0, len(cards))
	for _, c := range cards {
		if query != "" && !matchesQuery(c, query) {
			continue
		}
		if !matchesDiscrete(c, spec) {
			continue
		}
		out = append(out, c)
	}

	sortCards(out, spec.Sort, spec.Lang)
	return out
}

func matchesDiscrete(c types.Card, spec Spec) bool {
	if len(spec.Tags) > 0 && !slices.ContainsFunc(spec.Tags, c.HasTag) {
		return false
	}
	if len(spec.Sections) > 0 && !slices.ContainsFunc(spec.Sections, c.HasSection) {
		return false
	}
	if spec.Specialty != "" && c.Specialty != spec.Specialty {
		return false
	}
	if spec.AIGenerated != nil && c.AIGenerated != *spec.AIGenerated {
		return false
	}
	if spec.FavoritesOnly && !spec.Favorites[c.ID] {
		return false
	}
	return true
}

// matchesQuery accepts a card when the query is a substring of its title,
// tags or plain-text content, or a tight fuzzy match of its title or a tag.
// Fuzzy matching is skipped for long content, where nearly any query would
// appear as a scattered subsequence.
func matchesQuery(c types.Card, query string) bool {
	lower := strings.ToLower(query)

	short := append(c.Title.All(), c.Tags...)
	for _, s := range short {
		if strings.Contains(strings.ToLower(s), lower) {
			return true
		}
	}
	for _, content := range c.Content.All() {
		if strings.Contains(strings.ToLower(richtext.PlainText(content)), lower) {
			return true
		}
	}

	if utf8.RuneCountInString(query) < 2 {
		return false
	}
	for _, m := range fuzzy.Find(query, short) {
		if tight(m, len(query)) {
			return true
		}
	}
	return false
}

// tight rejects matches whose characters are spread far apart, keeping fuzzy
// search close to typo tolerance rather than subsequence search.
func tight(m fuzzy.Match, patternLen int) bool {
	if len(m.MatchedIndexes) == 0 {
		return false
	}
	span := m.MatchedIndexes[len(m.MatchedIndexes)-1] - m.MatchedIndexes[0] + 1
	return span <= patternLen+patternLen/2+1
}

func sortCards(cards []types.Card, key SortKey, lang string) {
	switch key {
	case SortTitle:
		col := collatorFor(lang)
		slices.SortStableFunc(cards, func(a, b types.Card) int {
			return col.CompareString(a.Title.Text(lang), b.Title.Text(lang))
		})
	case SortDate:
		slices.SortStableFunc(cards, func(a, b types.Card) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	case SortAI:
		slices.SortStableFunc(cards, func(a, b types.Card) int {
			switch {
			case a.AIGenerated == b.AIGenerated:
				return 0
			case a.AIGenerated:
				return -1
			default:
				return 1
			}
		})
	}
}

func collatorFor(lang string) *collate.Collator {
	tag := language.English
	if lang == types.LangFR {
		tag = language.French
	}
	return collate.New(tag)
}
