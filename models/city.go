package models

// InfoSection is a titled bullet list inside a city section.
type InfoSection struct {
	Title string   `json:"title" yaml:"title"`
	Items []string `json:"items" yaml:"items"`
}

// LinkButton is an external link rendered under a city section.
type LinkButton struct {
	Text string `json:"text" yaml:"text"`
	Href string `json:"href" yaml:"href"`
}

// CitySection is one expandable card on a city guide page.
type CitySection struct {
	Title           string        `json:"title" yaml:"title"`
	Icon            string        `json:"icon" yaml:"icon"`
	DefaultExpanded bool          `json:"defaultExpanded,omitempty" yaml:"defaultExpanded"`
	InfoSections    []InfoSection `json:"infoSections" yaml:"infoSections"`
	Links           []LinkButton  `json:"links" yaml:"links"`
}

// City represents a city guide. UserID is empty for cities nobody owns.
type City struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Country     string        `json:"country" yaml:"country"`
	Description string        `json:"description" yaml:"description"`
	Population  string        `json:"population" yaml:"population"`
	Highlights  []string      `json:"highlights" yaml:"highlights"`
	Icon        string        `json:"icon" yaml:"icon"`
	Path        string        `json:"path" yaml:"path"`
	Sections    []CitySection `json:"sections" yaml:"sections"`
	UserID      string        `json:"userId,omitempty" yaml:"userId"`
}

// Normalize replaces nil collections with empty ones so they encode as [].
func (c *City) Normalize() {
	if c.Highlights == nil {
		c.Highlights = []string{}
	}
	if c.Sections == nil {
		c.Sections = []CitySection{}
	}
	for i := range c.Sections {
		if c.Sections[i].InfoSections == nil {
			c.Sections[i].InfoSections = []InfoSection{}
		}
		if c.Sections[i].Links == nil {
			c.Sections[i].Links = []LinkButton{}
		}
	}
}

// CityRequest is the payload accepted by POST and PUT /api/cities. The
// validate tags are checked on create only; updates are partial.
type CityRequest struct {
	Name        string        `json:"name" validate:"required,notblank"`
	Country     string        `json:"country" validate:"required,notblank"`
	Description string        `json:"description" validate:"required,notblank"`
	Population  string        `json:"population"`
	Highlights  []string      `json:"highlights"`
	Icon        string        `json:"icon"`
	Path        string        `json:"path"`
	Sections    []CitySection `json:"sections"`
}

// Patch converts the request into a CityPatch. Empty strings are ignored;
// arrays apply whenever they were present in the payload, even when empty.
func (r CityRequest) Patch() CityPatch {
	var p CityPatch
	setString := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	setString(&p.Name, r.Name)
	setString(&p.Country, r.Country)
	setString(&p.Description, r.Description)
	setString(&p.Population, r.Population)
	setString(&p.Icon, r.Icon)
	setString(&p.Path, r.Path)
	p.Highlights = r.Highlights
	p.Sections = r.Sections
	return p
}

// CityPatch holds the fields to merge into a stored city.
type CityPatch struct {
	Name        *string
	Country     *string
	Description *string
	Population  *string
	Icon        *string
	Path        *string
	Highlights  []string
	Sections    []CitySection
}

// Apply merges the patch into city.
func (p CityPatch) Apply(city *City) {
	if p.Name != nil {
		city.Name = *p.Name
	}
	if p.Country != nil {
		city.Country = *p.Country
	}
	if p.Description != nil {
		city.Description = *p.Description
	}
	if p.Population != nil {
		city.Population = *p.Population
	}
	if p.Icon != nil {
		city.Icon = *p.Icon
	}
	if p.Path != nil {
		city.Path = *p.Path
	}
	if p.Highlights != nil {
		city.Highlights = p.Highlights
	}
	if p.Sections != nil {
		city.Sections = p.Sections
	}
	city.Normalize()
}
