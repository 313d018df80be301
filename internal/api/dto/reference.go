package dto

import "github.com/hugh/medpocket/internal/api/validation"

type CreateTemplateRequest struct {
	Name      string   `json:"name" validate:"required,max=200"`
	Specialty string   `json:"specialty,omitempty" validate:"max=100"`
	Section   string   `json:"section,omitempty" validate:"omitempty,section"`
	Content   string   `json:"content" validate:"max=100000"`
	Fields    []string `json:"fields" validate:"max=100,dive,required,max=100"`
}

func (r CreateTemplateRequest) Validate() map[string]string {
	return validation.Struct(r)
}

type CreateEntryRequest struct {
	TemplateID string            `json:"template_id,omitempty" validate:"omitempty,uuid"`
	Title      string            `json:"title" validate:"required,max=300"`
	Specialty  string            `json:"specialty,omitempty" validate:"max=100"`
	Data       map[string]string `json:"data" validate:"max=200"`
}

func (r CreateEntryRequest) Validate() map[string]string {
	return validation.Struct(r)
}
