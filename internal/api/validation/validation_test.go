package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid_simple", "user@example.com", true},
		{"valid_subdomain", "user@mail.example.com", true},
		{"valid_plus", "user+tag@example.com", true},
		{"valid_dash", "user-name@example.com", true},
		{"valid_dot", "user.name@example.com", true},
		{"invalid_no_at", "userexample.com", false},
		{"invalid_no_domain", "user@", false},
		{"invalid_no_user", "@example.com", false},
		{"invalid_double_at", "user@@example.com", false},
		{"invalid_spaces", "user @example.com", false},
		{"empty", "", false},
		{"too_long", strings.Repeat("a", 250) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidEmail(tt.email), "Email: %s", tt.email)
		})
	}
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("550e8400-e29b-41d4-a716-446655440000"))
	assert.False(t, IsValidUUID("550e8400"))
	assert.False(t, IsValidUUID(""))
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, IsValidURL("https://www.acog.org/guidance"))
	assert.True(t, IsValidURL("http://localhost:3000"))
	assert.False(t, IsValidURL("ftp://example.com"))
	assert.False(t, IsValidURL("not a url"))
}

func TestIsValidSection(t *testing.T) {
	assert.True(t, IsValidSection("prescriptions"))
	assert.False(t, IsValidSection("obstetrics"))
	assert.False(t, IsValidSection(""))
}

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

type sample struct {
	Email       string        `json:"email" validate:"required,email"`
	Password    string        `json:"password" validate:"required,min=8,max=72"`
	MaxTokens   int           `json:"max_tokens" validate:"omitempty,gte=1,lte=32000"`
	Section     string        `json:"section" validate:"omitempty,section"`
	Messages    []chatMessage `json:"messages" validate:"required,min=1,dive"`
	Unexported  string        `json:"-"`
	NoJSONField string        `validate:"omitempty,max=3"`
}

func TestStruct(t *testing.T) {
	valid := func() sample {
		return sample{
			Email:    "doc@example.com",
			Password: "longenough",
			Messages: []chatMessage{{Role: "user", Content: "hi"}},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.Empty(t, Struct(valid()))
	})

	tests := []struct {
		name    string
		mutate  func(*sample)
		field   string
		message string
	}{
		{"missing email", func(s *sample) { s.Email = "" }, "email", "Email is required"},
		{"bad email", func(s *sample) { s.Email = "nope" }, "email", "Email must be a valid email address"},
		{"short password", func(s *sample) { s.Password = "short" }, "password", "Password must be at least 8 characters"},
		{"token bound", func(s *sample) { s.MaxTokens = 50000 }, "max_tokens", "Max tokens must be at most 32000"},
		{"unknown section", func(s *sample) { s.Section = "astrology" }, "section", "Section must be one of"},
		{"no messages", func(s *sample) { s.Messages = nil }, "messages", "Messages is required"},
		{"bad role", func(s *sample) { s.Messages[0].Role = "tool" }, "messages[0].role", "Role must be one of system, user, assistant"},
		{"struct field name", func(s *sample) { s.NoJSONField = "toolong" }, "NoJSONField", "NoJSONField must be at most 3 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)

			errs := Struct(s)
			assert.Len(t, errs, 1)
			assert.Contains(t, errs[tt.field], tt.message)
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal", "hello world", "hello world"},
		{"null_byte", "hello\x00world", "helloworld"},
		{"newline_kept", "hello\nworld", "hello\nworld"},
		{"tab_kept", "hello\tworld", "hello\tworld"},
		{"bell_removed", "hello\x07world", "helloworld"},
		{"unicode", "héllo wörld", "héllo wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeString(tt.input))
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncate", "hello world", 5, "hello"},
		{"runes", "ééééé", 3, "ééé"},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TruncateString(tt.input, tt.maxLen))
		})
	}
}
