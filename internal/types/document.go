// Package types defines the CV document model shared by every cvsync component.
package types

import (
	"strings"
)

// Section names an optional, list-or-text part of the document.
type Section string

const (
	SectionSummary    Section = "summary"
	SectionWork       Section = "work"
	SectionEducation  Section = "education"
	SectionProjects   Section = "projects"
	SectionSkills     Section = "skills"
	SectionInterests  Section = "interests"
	SectionReferences Section = "references"
)

// OptionalSections lists every section that carries a visibility flag, in
// rendering order.
var OptionalSections = []Section{
	SectionSummary,
	SectionWork,
	SectionEducation,
	SectionProjects,
	SectionSkills,
	SectionInterests,
	SectionReferences,
}

// ParseSection converts user input into a Section.
func ParseSection(s string) (Section, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	// Accept singular spellings too ("project", "skill", ...).
	for _, sec := range OptionalSections {
		if s == string(sec) || s+"s" == string(sec) {
			return sec, true
		}
	}
	return "", false
}

// IsList reports whether the section holds an ordered list of entries.
func (s Section) IsList() bool {
	return s != SectionSummary && s != ""
}

// Profile is the identity block at the top of a CV.
type Profile struct {
	FirstName string `json:"firstName" yaml:"firstName"`
	LastName  string `json:"lastName" yaml:"lastName"`
	Headline  string `json:"headline" yaml:"headline"`
	Email     string `json:"email" yaml:"email"`
	Phone     string `json:"phone" yaml:"phone"`
	Location  string `json:"location" yaml:"location"`
	Website   string `json:"website" yaml:"website"`
	LinkedIn  string `json:"linkedin" yaml:"linkedin"`
	GitHub    string `json:"github" yaml:"github"`
}

// IsZero reports whether every profile field is blank.
func (p Profile) IsZero() bool {
	for _, v := range p.fields() {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (p Profile) fields() []string {
	return []string{p.FirstName, p.LastName, p.Headline, p.Email, p.Phone,
		p.Location, p.Website, p.LinkedIn, p.GitHub}
}

// WorkEntry is one position in the work history.
type WorkEntry struct {
	ID          string   `json:"id" yaml:"id"`
	Company     string   `json:"company" yaml:"company"`
	Position    string   `json:"position" yaml:"position"`
	Location    string   `json:"location" yaml:"location"`
	StartDate   string   `json:"startDate" yaml:"startDate"`
	EndDate     string   `json:"endDate" yaml:"endDate"`
	Current     bool     `json:"current" yaml:"current"`
	Description string   `json:"description" yaml:"description"`
	Highlights  []string `json:"highlights" yaml:"highlights"`
}

// EducationEntry is one degree or course of study.
type EducationEntry struct {
	ID          string `json:"id" yaml:"id"`
	Institution string `json:"institution" yaml:"institution"`
	Degree      string `json:"degree" yaml:"degree"`
	Field       string `json:"field" yaml:"field"`
	StartDate   string `json:"startDate" yaml:"startDate"`
	EndDate     string `json:"endDate" yaml:"endDate"`
	Grade       string `json:"grade" yaml:"grade"`
	Description string `json:"description" yaml:"description"`
}

// ProjectEntry is a personal or professional project.
type ProjectEntry struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Role         string   `json:"role" yaml:"role"`
	URL          string   `json:"url" yaml:"url"`
	StartDate    string   `json:"startDate" yaml:"startDate"`
	EndDate      string   `json:"endDate" yaml:"endDate"`
	Description  string   `json:"description" yaml:"description"`
	Technologies []string `json:"technologies" yaml:"technologies"`
}

// SkillEntry is a named skill with an optional level and keywords.
type SkillEntry struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Level    string   `json:"level" yaml:"level"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// InterestEntry is a hobby or area of interest.
type InterestEntry struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// ReferenceEntry is a professional reference.
type ReferenceEntry struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Relationship string `json:"relationship" yaml:"relationship"`
	Contact      string `json:"contact" yaml:"contact"`
	Text         string `json:"text" yaml:"text"`
}

// Document is the full CV tree.
type Document struct {
	Profile    Profile          `json:"profile" yaml:"profile"`
	Summary    string           `json:"summary" yaml:"summary"`
	Work       []WorkEntry      `json:"work" yaml:"work"`
	Education  []EducationEntry `json:"education" yaml:"education"`
	Projects   []ProjectEntry   `json:"projects" yaml:"projects"`
	Skills     []SkillEntry     `json:"skills" yaml:"skills"`
	Interests  []InterestEntry  `json:"interests" yaml:"interests"`
	References []ReferenceEntry `json:"references" yaml:"references"`
}

// IsMeaningful reports whether the document carries any content worth
// persisting remotely. An empty shell (blank profile, blank summary and
// zero-length lists) is not meaningful.
func (d *Document) IsMeaningful() bool {
	if d == nil {
		return false
	}
	if !d.Profile.IsZero() || strings.TrimSpace(d.Summary) != "" {
		return true
	}
	return len(d.Work) > 0 ||
		len(d.Education) > 0 ||
		len(d.Projects) > 0 ||
		len(d.Skills) > 0 ||
		len(d.Interests) > 0 ||
		len(d.References) > 0
}

// Count returns the number of entries in a list section.
func (d *Document) Count(sec Section) int {
	switch sec {
	case SectionWork:
		return len(d.Work)
	case SectionEducation:
		return len(d.Education)
	case SectionProjects:
		return len(d.Projects)
	case SectionSkills:
		return len(d.Skills)
	case SectionInterests:
		return len(d.Interests)
	case SectionReferences:
		return len(d.References)
	}
	return 0
}

// Clone returns a deep copy. List entries are value objects, so copying the
// slices (and their nested string slices) is enough to avoid sharing.
func (d Document) Clone() Document {
	out := d
	out.Work = make([]WorkEntry, len(d.Work))
	for i, e := range d.Work {
		e.Highlights = cloneStrings(e.Highlights)
		out.Work[i] = e
	}
	out.Education = append([]EducationEntry{}, d.Education...)
	out.Projects = make([]ProjectEntry, len(d.Projects))
	for i, e := range d.Projects {
		e.Technologies = cloneStrings(e.Technologies)
		out.Projects[i] = e
	}
	out.Skills = make([]SkillEntry, len(d.Skills))
	for i, e := range d.Skills {
		e.Keywords = cloneStrings(e.Keywords)
		out.Skills[i] = e
	}
	out.Interests = make([]InterestEntry, len(d.Interests))
	for i, e := range d.Interests {
		e.Keywords = cloneStrings(e.Keywords)
		out.Interests[i] = e
	}
	out.References = append([]ReferenceEntry{}, d.References...)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

// FullName joins the first and last name, ignoring blanks.
func (p Profile) FullName() string {
	return strings.TrimSpace(strings.Join(strings.Fields(p.FirstName+" "+p.LastName), " "))
}
