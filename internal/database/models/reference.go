package models

import "github.com/google/uuid"

// Template is a reusable structure for entries, shared by all users.
type Template struct {
	Base
	Name      string    `gorm:"not null" json:"name"`
	Specialty string    `gorm:"index" json:"specialty,omitempty"`
	Section   string    `json:"section,omitempty"`
	Content   string    `gorm:"type:text" json:"content"`
	Fields    []string  `gorm:"serializer:json" json:"fields"`
	CreatedBy uuid.UUID `gorm:"type:uuid;index" json:"created_by"`
}

func (Template) TableName() string {
	return "templates"
}

// Entry is a filled-in template owned by one user.
type Entry struct {
	Base
	UserID     uuid.UUID         `gorm:"type:uuid;index;not null" json:"user_id"`
	TemplateID *uuid.UUID        `gorm:"type:uuid;index" json:"template_id,omitempty"`
	Title      string            `gorm:"not null" json:"title"`
	Specialty  string            `json:"specialty,omitempty"`
	Data       map[string]string `gorm:"serializer:json" json:"data"`

	Template *Template `gorm:"foreignKey:TemplateID" json:"-"`
}

func (Entry) TableName() string {
	return "entries"
}

type Category struct {
	Base
	Key      string `gorm:"uniqueIndex;not null" json:"key"`
	Name     string `gorm:"not null" json:"name"`
	Position int    `json:"position"`
}

func (Category) TableName() string {
	return "categories"
}

type Link struct {
	Base
	Name      string `gorm:"not null" json:"name"`
	URL       string `gorm:"not null" json:"url"`
	Specialty string `gorm:"index" json:"specialty,omitempty"`
	Position  int    `json:"position"`
}

func (Link) TableName() string {
	return "links"
}
