package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidLocalizedText = errors.New("localized text must be a string or an {en, fr} object")

// Supported display languages.
const (
	LangEN = "en"
	LangFR = "fr"
)

// LocalizedText is either a plain string or an {en, fr} pair. It keeps the
// distinction through a JSON round trip so callers never guess the shape.
type LocalizedText struct {
	plain     string
	en        string
	fr        string
	localized bool
}

func Plain(s string) LocalizedText {
	return LocalizedText{plain: s}
}

func Localized(en, fr string) LocalizedText {
	return LocalizedText{en: en, fr: fr, localized: true}
}

func (t LocalizedText) IsLocalized() bool { return t.localized }

// Text resolves a display string. Plain text ignores lang; localized text
// falls back to the other language when the requested one is empty.
func (t LocalizedText) Text(lang string) string {
	if !t.localized {
		return t.plain
	}
	if lang == LangFR {
		if t.fr != "" {
			return t.fr
		}
		return t.en
	}
	if t.en != "" {
		return t.en
	}
	return t.fr
}

// String resolves in English.
func (t LocalizedText) String() string { return t.Text(LangEN) }

// All returns every non-empty variant, used for search and coverage checks.
func (t LocalizedText) All() []string {
	if !t.localized {
		if t.plain == "" {
			return nil
		}
		return []string{t.plain}
	}
	var out []string
	if t.en != "" {
		out = append(out, t.en)
	}
	if t.fr != "" {
		out = append(out, t.fr)
	}
	return out
}

func (t LocalizedText) IsZero() bool {
	return t.plain == "" && t.en == "" && t.fr == ""
}

// Map applies fn to every variant and keeps the shape.
func (t LocalizedText) Map(fn func(string) string) LocalizedText {
	if !t.localized {
		return Plain(fn(t.plain))
	}
	return Localized(fn(t.en), fn(t.fr))
}

// Equal lets go-cmp compare values without reaching into unexported fields.
func (t LocalizedText) Equal(o LocalizedText) bool {
	return t == o
}

type localizedJSON struct {
	EN string `json:"en"`
	FR string `json:"fr"`
}

func (t LocalizedText) MarshalJSON() ([]byte, error) {
	if t.localized {
		return json.Marshal(localizedJSON{EN: t.en, FR: t.fr})
	}
	return json.Marshal(t.plain)
}

func (t *LocalizedText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = LocalizedText{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLocalizedText, err)
		}
		*t = Plain(s)
		return nil
	case '{':
		var v localizedJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLocalizedText, err)
		}
		*t = Localized(v.EN, v.FR)
		return nil
	}
	return ErrInvalidLocalizedText
}
