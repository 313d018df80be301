package types

import (
	"slices"
	"time"
)

// Section keys a card can be filed under.
const (
	SectionConsultations  = "consultations"
	SectionPrescriptions  = "prescriptions"
	SectionInvestigations = "investigations"
	SectionProcedures     = "procedures"
	SectionTemplates      = "templates"
	SectionCalculators    = "calculators"
	SectionUrgences       = "urgences"
)

// DefaultSections is the section list every new specialty starts with.
func DefaultSections() []string {
	return []string{
		SectionConsultations,
		SectionPrescriptions,
		SectionInvestigations,
		SectionProcedures,
		SectionTemplates,
		SectionCalculators,
		SectionUrgences,
	}
}

type Urgency string

const (
	UrgencyStandard Urgency = "standard"
	UrgencyHigh     Urgency = "high"
	UrgencyUrgent   Urgency = "urgent"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyStandard, UrgencyHigh, UrgencyUrgent:
		return true
	}
	return false
}

type Reference struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Card is the shape cards take on the wire and in client storage.
type Card struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id,omitempty"`
	Specialty   string        `json:"specialty"`
	Sections    []string      `json:"sections"`
	Title       LocalizedText `json:"title"`
	Content     LocalizedText `json:"content"`
	Tags        []string      `json:"tags"`
	Urgency     Urgency       `json:"urgency"`
	References  []Reference   `json:"references"`
	AIGenerated bool          `json:"ai_generated"`
	AISources   []string      `json:"ai_sources,omitempty"`
	IsPublic    bool          `json:"is_public"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// Set only on client-side trashed copies.
	TrashedAt *time.Time `json:"trashed_at,omitempty"`
}

func (c Card) HasSection(section string) bool {
	return slices.Contains(c.Sections, section)
}

func (c Card) HasTag(tag string) bool {
	return slices.Contains(c.Tags, tag)
}
