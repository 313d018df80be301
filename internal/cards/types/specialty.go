package types

type SpecialtyLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Specialty is client-side configuration: which sections and reference links
// a clinical area shows.
type Specialty struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Sections []string        `json:"sections"`
	Links    []SpecialtyLink `json:"links"`
}

// Clone returns a deep copy so snapshots never alias live slices.
func (s Specialty) Clone() Specialty {
	out := s
	out.Sections = append([]string(nil), s.Sections...)
	out.Links = append([]SpecialtyLink(nil), s.Links...)
	return out
}

func DefaultSpecialties() []Specialty {
	return []Specialty{
		{
			ID:       "gynecology",
			Name:     "Gynecology",
			Sections: DefaultSections(),
			Links: []SpecialtyLink{
				{Name: "SOGC Guidelines", URL: "https://www.sogc.org/guidelines"},
				{Name: "UpToDate Gynecology", URL: "https://www.uptodate.com/contents/gynecology"},
			},
		},
		{
			ID:       "obstetrics",
			Name:     "Obstetrics",
			Sections: DefaultSections(),
			Links: []SpecialtyLink{
				{Name: "SOGC Obstetrics", URL: "https://www.sogc.org/guidelines"},
				{Name: "UpToDate Obstetrics", URL: "https://www.uptodate.com/contents/obstetrics"},
			},
		},
		{
			ID:       "surgery",
			Name:     "Surgery",
			Sections: DefaultSections(),
			Links: []SpecialtyLink{
				{Name: "ACS Surgery Guidelines", URL: "https://www.facs.org/education/patient-education/patient-resources/surgery-guidelines/"},
				{Name: "UpToDate Surgery", URL: "https://www.uptodate.com/contents/surgery"},
			},
		},
	}
}
