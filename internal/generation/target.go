package generation

import (
	"regexp"
	"strconv"
	"strings"
)

type Mode string

const (
	ModePrompt   Mode = "prompt"
	ModeDocument Mode = "document"
	ModeList     Mode = "list"
)

// Plan is the sizing decision for one request.
type Plan struct {
	Mode   Mode
	Target int
	Items  []string // list mode only
}

var (
	listItemLine = regexp.MustCompile(`^\s*(?:[-*•]|\d{1,3}[.)])\s+(.+?)\s*$`)
	topN         = regexp.MustCompile(`(?i)\btop\s+(\d{1,4})\b`)
	nCards       = regexp.MustCompile(`(?i)\b(\d{1,4})\s+(?:[\p{L}-]+\s+){0,2}(?:cards?|flashcards?|fiches?)\b`)
)

// ListItems returns the unique enumerated items (bullets or numbered lines)
// in the request, in order of first appearance.
func ListItems(request string) []string {
	var items []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(request, "\n") {
		m := listItemLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[1])
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		items = append(items, item)
	}
	return items
}

// RequestedCount extracts an explicit count such as "top 75" or "30 cards".
// It returns 0 when the request names none.
func RequestedCount(request string) int {
	for _, re := range []*regexp.Regexp{topN, nCards} {
		if m := re.FindStringSubmatch(request); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// ResolveTarget decides how many cards a request asks for. Two or more
// enumerated items switch to list mode with one card per item; otherwise an
// explicit count wins over defaultTarget. Everything is capped at ceiling.
func ResolveTarget(request string, defaultTarget, ceiling int) Plan {
	if items := ListItems(request); len(items) >= 2 {
		if ceiling > 0 && len(items) > ceiling {
			items = items[:ceiling]
		}
		return Plan{Mode: ModeList, Target: len(items), Items: items}
	}

	target := RequestedCount(request)
	if target == 0 {
		target = defaultTarget
	}
	if ceiling > 0 && target > ceiling {
		target = ceiling
	}
	return Plan{Mode: ModePrompt, Target: target}
}
