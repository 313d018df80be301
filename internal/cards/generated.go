package cards

import (
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/database/models"
)

// FromGenerated turns a previewed card into a create input. Generated cards
// are always flagged as AI-generated and keep their sources.
func FromGenerated(g models.GeneratedCard, specialty string) CardInput {
	refs := make([]types.Reference, 0, len(g.Sources))
	for _, s := range g.Sources {
		refs = append(refs, types.Reference{Name: s, Type: "source"})
	}
	return CardInput{
		Specialty:   specialty,
		Sections:    g.Sections,
		Title:       types.Plain(g.Title),
		Content:     types.Plain(g.Content),
		Urgency:     types.UrgencyStandard,
		References:  refs,
		AIGenerated: true,
		AISources:   g.Sources,
	}
}

func FromGeneratedAll(gs []models.GeneratedCard, specialty string) []CardInput {
	out := make([]CardInput, len(gs))
	for i, g := range gs {
		out[i] = FromGenerated(g, specialty)
	}
	return out
}

// Card returns the input as an unsaved wire card.
func (in CardInput) Card() types.Card {
	return types.Card{
		Specialty:   in.Specialty,
		Sections:    in.Sections,
		Title:       in.Title,
		Content:     in.Content,
		Tags:        in.Tags,
		Urgency:     in.Urgency,
		References:  in.References,
		AIGenerated: in.AIGenerated,
		AISources:   in.AISources,
	}
}
