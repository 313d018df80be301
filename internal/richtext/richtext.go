// Package richtext cleans card HTML coming from editors and LLM output.
package richtext

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
	stripOnce  sync.Once
	strip      *bluemonday.Policy

	blockTags = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6]|tr|table|blockquote)[^>]*>`)
	spaces    = regexp.MustCompile(`[ \t\f\v]+`)
	newlines  = regexp.MustCompile(`\s*\n\s*`)
)

func cardPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowStyles("color", "background-color", "text-align", "font-weight", "font-style", "text-decoration").Globally()
		p.AllowAttrs("border", "colspan", "rowspan").OnElements("table", "td", "th")
		p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)).Globally()
		p.RequireNoFollowOnLinks(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
		policy = p
	})
	return policy
}

// Sanitize strips scripts, event handlers and unknown markup while keeping
// the formatting cards use (headings, lists, tables, inline color).
func Sanitize(s string) string {
	return strings.TrimSpace(cardPolicy().Sanitize(s))
}

// PlainText renders HTML as readable text: block elements become line
// breaks, entities are decoded.
func PlainText(s string) string {
	stripOnce.Do(func() { strip = bluemonday.StrictPolicy() })

	s = blockTags.ReplaceAllString(s, "\n")
	s = html.UnescapeString(strip.Sanitize(s))
	s = spaces.ReplaceAllString(s, " ")
	s = newlines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
