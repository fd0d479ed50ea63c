package store

import (
	"reflect"

	"github.com/resumely/cvsync/internal/types"
)

type entry[T any] interface {
	EntryID() string
	WithID(id string) T
}

// uniqueID draws identifiers until one is not already used in list.
func uniqueID[T entry[T]](list []T, gen func() string) string {
	for {
		id := gen()
		if id == "" {
			continue
		}
		if indexOf(list, id) < 0 {
			return id
		}
	}
}

func indexOf[T entry[T]](list []T, id string) int {
	for i := range list {
		if list[i].EntryID() == id {
			return i
		}
	}
	return -1
}

func appendEntry[T entry[T]](list *[]T, e T, gen func() string) string {
	id := uniqueID(*list, gen)
	*list = append(*list, e.WithID(id))
	return id
}

// updateEntry applies fn to the entry with id. The identifier is restored
// afterwards so callers can never rewrite it.
func updateEntry[T entry[T]](list []T, id string, fn func(*T)) bool {
	i := indexOf(list, id)
	if i < 0 {
		return false
	}
	e := list[i].WithID(id)
	fn(&e)
	list[i] = e.WithID(id)
	return true
}

func removeEntry[T entry[T]](list *[]T, id string) bool {
	i := indexOf(*list, id)
	if i < 0 {
		return false
	}
	out := make([]T, 0, len(*list)-1)
	out = append(out, (*list)[:i]...)
	out = append(out, (*list)[i+1:]...)
	*list = out
	return true
}

func moveEntry[T entry[T]](list []T, id string, to int) bool {
	from := indexOf(list, id)
	if from < 0 {
		return false
	}
	if to < 0 {
		to = 0
	}
	if to > len(list)-1 {
		to = len(list) - 1
	}
	if from == to {
		return false
	}
	e := list[from]
	if from < to {
		copy(list[from:to], list[from+1:to+1])
	} else {
		copy(list[to+1:from+1], list[to:from])
	}
	list[to] = e
	return true
}

// reassignIDs gives entries with a blank or repeated identifier a fresh one.
func reassignIDs[T entry[T]](list []T, gen func() string) []T {
	seen := make(map[string]bool, len(list))
	out := make([]T, 0, len(list))
	for _, e := range list {
		id := e.EntryID()
		if id == "" || seen[id] {
			id = uniqueID(list, gen)
			for seen[id] {
				id = uniqueID(list, gen)
			}
		}
		seen[id] = true
		out = append(out, e.WithID(id))
	}
	return out
}

// carryIDs gives entries of next that have no identifier the identifier of an
// entry in prev: first one with identical content, then the one at the same
// position. Identifiers already present in next are never handed out again.
func carryIDs[T entry[T]](prev, next []T) []T {
	taken := make(map[string]bool, len(next))
	for _, e := range next {
		if id := e.EntryID(); id != "" {
			taken[id] = true
		}
	}
	out := make([]T, len(next))
	copy(out, next)

	for i, e := range out {
		if e.EntryID() != "" {
			continue
		}
		for _, p := range prev {
			id := p.EntryID()
			if id != "" && !taken[id] && reflect.DeepEqual(p.WithID(""), e.WithID("")) {
				out[i] = e.WithID(id)
				taken[id] = true
				break
			}
		}
	}
	for i, e := range out {
		if e.EntryID() != "" || i >= len(prev) {
			continue
		}
		if id := prev[i].EntryID(); id != "" && !taken[id] {
			out[i] = e.WithID(id)
			taken[id] = true
		}
	}
	return out
}

// AddWork appends a work entry and returns its generated identifier.
func (s *Store) AddWork(e types.WorkEntry) string {
	var id string
	s.mutate(func(snap *types.Snapshot) bool {
		id = appendEntry(&snap.Document.Work, e, s.newID)
		return true
	})
	return id
}

// UpdateWork applies fn to the work entry with id. Unknown ids are a no-op.
func (s *Store) UpdateWork(id string, fn func(*types.WorkEntry)) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return updateEntry(snap.Document.Work, id, fn)
	})
}

// RemoveWork deletes the work entry with id. Unknown ids are a no-op.
func (s *Store) RemoveWork(id string) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return removeEntry(&snap.Document.Work, id)
	})
}

// AddEducation appends an education entry and returns its generated identifier.
func (s *Store) AddEducation(e types.EducationEntry) string {
	var id string
	s.mutate(func(snap *types.Snapshot) bool {
		id = appendEntry(&snap.Document.Education, e, s.newID)
		return true
	})
	return id
}

// UpdateEducation applies fn to the education entry with id.
func (s *Store) UpdateEducation(id string, fn func(*types.EducationEntry)) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return updateEntry(snap.Document.Education, id, fn)
	})
}

// RemoveEducation deletes the education entry with id.
func (s *Store) RemoveEducation(id string) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return removeEntry(&snap.Document.Education, id)
	})
}

// AddProject appends a project entry and returns its generated identifier.
func (s *Store) AddProject(e types.ProjectEntry) string {
	var id string
	s.mutate(func(snap *types.Snapshot) bool {
		id = appendEntry(&snap.Document.Projects, e, s.newID)
		return true
	})
	return id
}

// UpdateProject applies fn to the project entry with id.
func (s *Store) UpdateProject(id string, fn func(*types.ProjectEntry)) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return updateEntry(snap.Document.Projects, id, fn)
	})
}

// RemoveProject deletes the project entry with id.
func (s *Store) RemoveProject(id string) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return removeEntry(&snap.Document.Projects, id)
	})
}

// AddSkill appends a skill entry and returns its generated identifier.
func (s *Store) AddSkill(e types.SkillEntry) string {
	var id string
	s.mutate(func(snap *types.Snapshot) bool {
		id = appendEntry(&snap.Document.Skills, e, s.newID)
		return true
	})
	return id
}

// UpdateSkill applies fn to the skill entry with id.
func (s *Store) UpdateSkill(id string, fn func(*types.SkillEntry)) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return updateEntry(snap.Document.Skills, id, fn)
	})
}

// RemoveSkill deletes the skill entry with id.
func (s *Store) RemoveSkill(id string) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return removeEntry(&snap.Document.Skills, id)
	})
}

// AddInterest appends an interest entry and returns its generated identifier.
func (s *Store) AddInterest(e types.InterestEntry) string {
	var id string
	s.mutate(func(snap *types.Snapshot) bool {
		id = appendEntry(&snap.Document.Interests, e, s.newID)
		return true
	})
	return id
}

// UpdateInterest applies fn to the interest entry with id.
func (s *Store) UpdateInterest(id string, fn func(*types.InterestEntry)) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return updateEntry(snap.Document.Interests, id, fn)
	})
}

// RemoveInterest deletes the interest entry with id.
func (s *Store) RemoveInterest(id string) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return removeEntry(&snap.Document.Interests, id)
	})
}

// AddReference appends a reference entry and returns its generated identifier.
func (s *Store) AddReference(e types.ReferenceEntry) string {
	var id string
	s.mutate(func(snap *types.Snapshot) bool {
		id = appendEntry(&snap.Document.References, e, s.newID)
		return true
	})
	return id
}

// UpdateReference applies fn to the reference entry with id.
func (s *Store) UpdateReference(id string, fn func(*types.ReferenceEntry)) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return updateEntry(snap.Document.References, id, fn)
	})
}

// RemoveReference deletes the reference entry with id.
func (s *Store) RemoveReference(id string) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		return removeEntry(&snap.Document.References, id)
	})
}

// RemoveEntry deletes the entry with id from any list section.
func (s *Store) RemoveEntry(sec types.Section, id string) bool {
	switch sec {
	case types.SectionWork:
		return s.RemoveWork(id)
	case types.SectionEducation:
		return s.RemoveEducation(id)
	case types.SectionProjects:
		return s.RemoveProject(id)
	case types.SectionSkills:
		return s.RemoveSkill(id)
	case types.SectionInterests:
		return s.RemoveInterest(id)
	case types.SectionReferences:
		return s.RemoveReference(id)
	}
	return false
}

// MoveEntry moves the entry with id to index within its section. The index is
// clamped to the list bounds. Unknown ids and no-op moves return false.
func (s *Store) MoveEntry(sec types.Section, id string, index int) bool {
	return s.mutate(func(snap *types.Snapshot) bool {
		d := &snap.Document
		switch sec {
		case types.SectionWork:
			return moveEntry(d.Work, id, index)
		case types.SectionEducation:
			return moveEntry(d.Education, id, index)
		case types.SectionProjects:
			return moveEntry(d.Projects, id, index)
		case types.SectionSkills:
			return moveEntry(d.Skills, id, index)
		case types.SectionInterests:
			return moveEntry(d.Interests, id, index)
		case types.SectionReferences:
			return moveEntry(d.References, id, index)
		}
		return false
	})
}
