package generation

import (
	"regexp"
	"strings"

	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/richtext"
)

var (
	prescriptionIntent = regexp.MustCompile(`(?i)prescription|prescribe|medication|dose|dosing|q\d+h|tablet|capsule|subcut|topical|(?:^|[^a-z])(?:mg|po|iv|im|sc)(?:$|[^a-z])`)

	outOfScopeTerms = regexp.MustCompile(`(?i)anatomical|pure physiology|pathophysiology|classification|clinical finding|examination|presentation|laboratory finding|imaging finding|ultrasound|assessment|diagnosis|differential|etiology|epidemiology`)

	// RE2 has no lookahead: the exempt suffix is captured and a match only
	// counts when the capture is empty.
	anatomyTerm = regexp.MustCompile(`(?i)anatomy(-based|\sinhibitor|\sdifference)?`)
	stageTerm   = regexp.MustCompile(`(?i)stage\s(management|treatment)?`)
)

const strictPrescriptionConstraints = `STRICT: Output ONLY prescription-related content. Exclude pathophysiology, clinical findings, anatomy, investigations.
- Every card MUST include: medication name, dose, route, frequency, duration, and indication(s).
- If a medication is not explicitly mentioned in the document, do not invent it.`

const defaultConstraints = `- Follow the USER REQUEST exactly. Do not include unrelated topics.`

// WantsPrescriptions reports whether the request is scoped to prescriptions.
func WantsPrescriptions(request string) bool {
	return prescriptionIntent.MatchString(request)
}

// Constraints returns the scope rules appended to every batch prompt.
func Constraints(request string) string {
	if WantsPrescriptions(request) {
		return strictPrescriptionConstraints
	}
	return defaultConstraints
}

// FilterByScope drops clearly non-prescription cards when the request is
// prescription scoped and returns the rest in order. Other requests pass
// through untouched.
func FilterByScope(cards []models.GeneratedCard, request string) []models.GeneratedCard {
	if !WantsPrescriptions(request) {
		return cards
	}

	kept := make([]models.GeneratedCard, 0, len(cards))
	for _, c := range cards {
		if outOfScope(c.Title + " " + richtext.PlainText(c.Content)) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func outOfScope(text string) bool {
	text = strings.ToLower(text)
	if outOfScopeTerms.MatchString(text) {
		return true
	}
	return hasUnexempted(anatomyTerm, text) || hasUnexempted(stageTerm, text)
}

func hasUnexempted(re *regexp.Regexp, text string) bool {
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		if m[2] < 0 {
			return true
		}
	}
	return false
}
