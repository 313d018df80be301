package richtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{
			name:     "drops script",
			input:    `<p>Dose</p><script>alert(1)</script>`,
			contains: []string{"<p>Dose</p>"},
			absent:   []string{"script", "alert"},
		},
		{
			name:     "drops event handlers",
			input:    `<strong onclick="x()">Title</strong>`,
			contains: []string{"<strong>Title</strong>"},
			absent:   []string{"onclick"},
		},
		{
			name:     "keeps inline color",
			input:    `<span style="color: red">urgent</span>`,
			contains: []string{"color: red", "urgent"},
		},
		{
			name:     "keeps tables",
			input:    `<table border="1"><tr><td>a</td></tr></table>`,
			contains: []string{"<table", "<td>a</td>"},
		},
		{
			name:     "javascript links removed",
			input:    `<a href="javascript:alert(1)">x</a>`,
			absent:   []string{"javascript"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Sanitize(tt.input)
			for _, c := range tt.contains {
				assert.Contains(t, out, c)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, out, a)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Title\nLine one\nLine two", PlainText("<h3>Title</h3><p>Line one</p><p>Line   two</p>"))
	assert.Equal(t, "5 mg & 10 mg", PlainText("<b>5 mg</b> &amp; 10 mg"))
	assert.Equal(t, "", PlainText("   "))
}
