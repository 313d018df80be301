package client

import (
	"github.com/hugh/medpocket/internal/api/dto"
	"github.com/hugh/medpocket/internal/cards/types"
)

// CardPatch is a partial card update. Nil fields are left unchanged.
type CardPatch struct {
	Specialty  *string
	Sections   *[]string
	Title      *types.LocalizedText
	Content    *types.LocalizedText
	Tags       *[]string
	Urgency    *types.Urgency
	References *[]types.Reference
}

// Apply writes the set fields onto c.
func (p CardPatch) Apply(c *types.Card) {
	if p.Specialty != nil {
		c.Specialty = *p.Specialty
	}
	if p.Sections != nil {
		c.Sections = append([]string(nil), (*p.Sections)...)
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Content != nil {
		c.Content = *p.Content
	}
	if p.Tags != nil {
		c.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Urgency != nil {
		c.Urgency = *p.Urgency
	}
	if p.References != nil {
		c.References = append([]types.Reference(nil), (*p.References)...)
	}
}

func (p CardPatch) body() dto.UpdateCardRequest {
	req := dto.UpdateCardRequest{
		Specialty: p.Specialty,
		Sections:  p.Sections,
		Title:     p.Title,
		Content:   p.Content,
		Tags:      p.Tags,
		Urgency:   p.Urgency,
	}
	if p.References != nil {
		refs := referenceRequests(*p.References)
		req.References = &refs
	}
	return req
}

func createBody(c types.Card) dto.CreateCardRequest {
	return dto.CreateCardRequest{
		Specialty:   c.Specialty,
		Sections:    c.Sections,
		Title:       c.Title,
		Content:     c.Content,
		Tags:        c.Tags,
		Urgency:     c.Urgency,
		References:  referenceRequests(c.References),
		AIGenerated: c.AIGenerated,
		AISources:   c.AISources,
	}
}

func referenceRequests(refs []types.Reference) []dto.ReferenceRequest {
	out := make([]dto.ReferenceRequest, len(refs))
	for i, r := range refs {
		out[i] = dto.ReferenceRequest{Name: r.Name, Type: r.Type, URL: r.URL}
	}
	return out
}
