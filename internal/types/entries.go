package types

// EntryID and WithID let the store treat every list entry type uniformly.
// WithID returns a copy carrying id whose nested slices are not shared with
// the receiver.

func (e WorkEntry) EntryID() string { return e.ID }

func (e WorkEntry) WithID(id string) WorkEntry {
	e.ID = id
	e.Highlights = cloneStrings(e.Highlights)
	return e
}

func (e EducationEntry) EntryID() string { return e.ID }

func (e EducationEntry) WithID(id string) EducationEntry {
	e.ID = id
	return e
}

func (e ProjectEntry) EntryID() string { return e.ID }

func (e ProjectEntry) WithID(id string) ProjectEntry {
	e.ID = id
	e.Technologies = cloneStrings(e.Technologies)
	return e
}

func (e SkillEntry) EntryID() string { return e.ID }

func (e SkillEntry) WithID(id string) SkillEntry {
	e.ID = id
	e.Keywords = cloneStrings(e.Keywords)
	return e
}

func (e InterestEntry) EntryID() string { return e.ID }

func (e InterestEntry) WithID(id string) InterestEntry {
	e.ID = id
	e.Keywords = cloneStrings(e.Keywords)
	return e
}

func (e ReferenceEntry) EntryID() string { return e.ID }

func (e ReferenceEntry) WithID(id string) ReferenceEntry {
	e.ID = id
	return e
}
