package generation

import (
	"encoding/json"
	"errors"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/richtext"
)

// ErrUnparseableBatch means no card could be recovered from a completion.
var ErrUnparseableBatch = errors.New("no cards could be parsed from the completion")

var (
	codeFence     = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	smartQuotes   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

type rawCard struct {
	Title    string          `json:"title"`
	Content  string          `json:"content"`
	Sources  json.RawMessage `json:"sources"`
	Sections json.RawMessage `json:"sections"`
}

// ParseBatch turns one batch completion into cards. It tries a strict decode
// of the outermost JSON array, then a repaired decode, then salvages every
// balanced object. Only records with both a title and content become cards.
func ParseBatch(completion string) ([]models.GeneratedCard, error) {
	text := stripFences(completion)

	if arr, ok := outerArray(text); ok {
		if raws, err := decodeArray(arr); err == nil {
			if cards := toGenerated(raws); len(cards) > 0 {
				return cards, nil
			}
		}
		if raws, err := decodeArray(repairJSON(arr)); err == nil {
			if cards := toGenerated(raws); len(cards) > 0 {
				return cards, nil
			}
		}
	}

	if cards := toGenerated(salvageObjects(text)); len(cards) > 0 {
		return cards, nil
	}
	return nil, ErrUnparseableBatch
}

func stripFences(s string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(s, ""))
}

func outerArray(s string) (string, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func decodeArray(s string) ([]rawCard, error) {
	var raws []rawCard
	if err := json.Unmarshal([]byte(s), &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// repairJSON fixes the mistakes models make most often: trailing commas,
// typographic quotes used as delimiters, raw newlines and tabs inside
// string literals.
func repairJSON(s string) string {
	s = smartQuotes.Replace(s)
	s = escapeControlChars(s)
	return trailingComma.ReplaceAllString(s, "$1")
}

func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false

	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\r':
				b.WriteString(`\r`)
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			case r < 0x20:
				continue
			}
		} else if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

// salvageObjects extracts every balanced top-level {...} and keeps the ones
// that decode, directly or after repair.
func salvageObjects(s string) []rawCard {
	var out []rawCard
	depth, start := 0, -1
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if raw, ok := decodeObject(s[start : i+1]); ok {
					out = append(out, raw)
				}
				start = -1
			}
		}
	}
	return out
}

func decodeObject(obj string) (rawCard, bool) {
	var raw rawCard
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		if err := json.Unmarshal([]byte(repairJSON(obj)), &raw); err != nil {
			return rawCard{}, false
		}
	}
	if !raw.complete() {
		return rawCard{}, false
	}
	return raw, true
}

func (r rawCard) complete() bool {
	return strings.TrimSpace(r.Title) != "" && strings.TrimSpace(r.Content) != ""
}

func toGenerated(raws []rawCard) []models.GeneratedCard {
	out := make([]models.GeneratedCard, 0, len(raws))
	for _, r := range raws {
		if !r.complete() {
			continue
		}
		title := strings.TrimSpace(r.Title)
		out = append(out, models.GeneratedCard{
			Title:    title,
			Content:  richtext.Sanitize(r.Content),
			Sources:  stringList(r.Sources),
			Sections: knownSections(stringList(r.Sections)),
		})
	}
	return out
}

// stringList accepts an array of strings and ignores any other shape.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return []string{}
	}
	out := list[:0]
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func knownSections(keys []string) []string {
	valid := types.DefaultSections()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(k)
		if slices.Contains(valid, k) && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// SingleCard is a one-card completion split into its parts.
type SingleCard struct {
	Title   string
	Content string
	Sources []string
}

var (
	firstStrong  = regexp.MustCompile(`(?s)<strong>(.+?)</strong>`)
	firstH3      = regexp.MustCompile(`(?s)<h3[^>]*>(.+?)</h3>`)
	sourcesLine  = regexp.MustCompile(`<strong>[^<]*Sources:</strong>\s*([^<]+)`)
	sourcesPara  = regexp.MustCompile(`(?is)<p>[^<]*<strong>[^<]*Sources:</strong>.*?</p>`)
	sourcesLabel = regexp.MustCompile(`(?i)sources:\s*$`)
)

const fallbackTitleLength = 50

// ParseSingleCard extracts a title and source list from a single-card HTML
// completion. The title is the first <strong> element, else the first <h3>,
// else the opening words of the text.
func ParseSingleCard(completion string) SingleCard {
	content := strings.TrimSpace(completion)
	card := SingleCard{Sources: []string{}}

	if m := sourcesLine.FindStringSubmatch(content); m != nil {
		for _, s := range strings.Split(m[1], ",") {
			if s = strings.TrimSpace(s); s != "" {
				card.Sources = append(card.Sources, s)
			}
		}
		content = strings.TrimSpace(sourcesPara.ReplaceAllString(content, ""))
	}

	if m := firstStrong.FindStringSubmatchIndex(content); m != nil {
		inner := content[m[2]:m[3]]
		if !sourcesLabel.MatchString(richtext.PlainText(inner)) {
			card.Title = richtext.PlainText(inner)
			content = strings.TrimSpace(content[:m[0]] + content[m[1]:])
		}
	}

	if card.Title == "" {
		if m := firstH3.FindStringSubmatch(content); m != nil {
			card.Title = richtext.PlainText(m[1])
		} else {
			card.Title = truncateRunes(richtext.PlainText(content), fallbackTitleLength)
		}
	}

	card.Content = richtext.Sanitize(content)
	return card
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
