package types

import "time"

// DefaultTemplateID is the template used when none was chosen.
const DefaultTemplateID = "classic"

// Visibility maps each optional section to whether it is rendered.
// A missing key means visible.
type Visibility map[Section]bool

// DefaultVisibility returns a map with every optional section visible.
func DefaultVisibility() Visibility {
	v := make(Visibility, len(OptionalSections))
	for _, sec := range OptionalSections {
		v[sec] = true
	}
	return v
}

// IsVisible reports the flag for sec, defaulting to true.
func (v Visibility) IsVisible(sec Section) bool {
	shown, ok := v[sec]
	if !ok {
		return true
	}
	return shown
}

// Normalize returns a copy holding a flag for every optional section.
// Unknown keys are dropped.
func (v Visibility) Normalize() Visibility {
	out := make(Visibility, len(OptionalSections))
	for _, sec := range OptionalSections {
		out[sec] = v.IsVisible(sec)
	}
	return out
}

// Snapshot is the unit that gets pushed, fingerprinted and rendered.
type Snapshot struct {
	Document   Document   `json:"document" yaml:"document"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
	TemplateID string     `json:"templateId" yaml:"templateId"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Document:   s.Document.Clone(),
		Visibility: s.Visibility.Normalize(),
		TemplateID: s.TemplateID,
	}
}

// EmptySnapshot returns the state of a brand new document.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Visibility: DefaultVisibility(),
		TemplateID: DefaultTemplateID,
	}
}

// SyncMeta tracks the relationship between local and remote state.
type SyncMeta struct {
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
	IsDirty      bool       `json:"isDirty"`
}
