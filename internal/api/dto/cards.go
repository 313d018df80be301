package dto

import (
	"github.com/hugh/medpocket/internal/api/validation"
	"github.com/hugh/medpocket/internal/cards"
	"github.com/hugh/medpocket/internal/cards/types"
)

type ReferenceRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Type string `json:"type,omitempty" validate:"max=50"`
	URL  string `json:"url,omitempty" validate:"omitempty,http_url"`
}

type CreateCardRequest struct {
	Specialty   string              `json:"specialty" validate:"max=100"`
	Sections    []string            `json:"sections" validate:"omitempty,dive,section"`
	Title       types.LocalizedText `json:"title"`
	Content     types.LocalizedText `json:"content"`
	Tags        []string            `json:"tags" validate:"max=50,dive,max=60"`
	Urgency     types.Urgency       `json:"urgency" validate:"omitempty,oneof=standard high urgent"`
	References  []ReferenceRequest  `json:"references" validate:"max=50,dive"`
	AIGenerated bool                `json:"ai_generated"`
	AISources   []string            `json:"ai_sources" validate:"max=50"`
}

func (r CreateCardRequest) Validate() map[string]string {
	errs := validation.Struct(r)
	if r.Title.IsZero() {
		errs["title"] = "Title is required"
	}
	return errs
}

func (r CreateCardRequest) Input() cards.CardInput {
	return cards.CardInput{
		Specialty:   r.Specialty,
		Sections:    r.Sections,
		Title:       r.Title,
		Content:     r.Content,
		Tags:        r.Tags,
		Urgency:     r.Urgency,
		References:  toReferences(r.References),
		AIGenerated: r.AIGenerated,
		AISources:   r.AISources,
	}
}

// UpdateCardRequest is a partial update: absent fields stay as stored.
type UpdateCardRequest struct {
	Specialty   *string              `json:"specialty" validate:"omitempty,max=100"`
	Sections    *[]string            `json:"sections" validate:"omitempty,dive,section"`
	Title       *types.LocalizedText `json:"title"`
	Content     *types.LocalizedText `json:"content"`
	Tags        *[]string            `json:"tags" validate:"omitempty,max=50,dive,max=60"`
	Urgency     *types.Urgency       `json:"urgency" validate:"omitempty,oneof=standard high urgent"`
	References  *[]ReferenceRequest  `json:"references" validate:"omitempty,max=50,dive"`
	AIGenerated *bool                `json:"ai_generated"`
	AISources   *[]string            `json:"ai_sources" validate:"omitempty,max=50"`
}

func (r UpdateCardRequest) Validate() map[string]string {
	errs := validation.Struct(r)
	if r.Title != nil && r.Title.IsZero() {
		errs["title"] = "Title cannot be empty"
	}
	return errs
}

func (r UpdateCardRequest) Patch() cards.CardPatch {
	p := cards.CardPatch{
		Specialty:   r.Specialty,
		Sections:    r.Sections,
		Title:       r.Title,
		Content:     r.Content,
		Tags:        r.Tags,
		Urgency:     r.Urgency,
		AIGenerated: r.AIGenerated,
		AISources:   r.AISources,
	}
	if r.References != nil {
		refs := toReferences(*r.References)
		p.References = &refs
	}
	return p
}

func toReferences(in []ReferenceRequest) []types.Reference {
	if in == nil {
		return nil
	}
	out := make([]types.Reference, len(in))
	for i, r := range in {
		out[i] = types.Reference{Name: r.Name, Type: r.Type, URL: r.URL}
	}
	return out
}

type NoteRequest struct {
	Note string `json:"note" validate:"max=20000"`
}

func (r NoteRequest) Validate() map[string]string {
	return validation.Struct(r)
}

type NoteResponse struct {
	Note string `json:"note"`
}
