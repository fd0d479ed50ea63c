package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/types"
)

// ErrUnknownField is returned by SetProfileField for an unrecognized field name.
var ErrUnknownField = errors.New("unknown profile field")

// ChangeKind describes what caused a Change notification.
type ChangeKind int

const (
	// ChangeMutation is a local edit through the mutation API.
	ChangeMutation ChangeKind = iota
	// ChangeHydrate is a remote load applied by the sync engine.
	ChangeHydrate
	// ChangeSynced is a push acknowledgment.
	ChangeSynced
	// ChangeReset is an identity switch or logout.
	ChangeReset
	// ChangeRestore is a reload of persisted local state.
	ChangeRestore
)

// String returns a human-readable representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeMutation:
		return "mutation"
	case ChangeHydrate:
		return "hydrate"
	case ChangeSynced:
		return "synced"
	case ChangeReset:
		return "reset"
	case ChangeRestore:
		return "restore"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers after the store lock is released.
type Change struct {
	Kind     ChangeKind
	Identity string
	Revision uint64
	Dirty    bool
}

// PersistedState is the unit written to durable local storage.
type PersistedState struct {
	Snapshot types.Snapshot `json:"snapshot"`
	Meta     types.SyncMeta `json:"meta"`
}

// Persister is the durable local storage behind the store.
type Persister interface {
	// SaveState stores the full state for identity, replacing any previous value.
	SaveState(identity string, state *PersistedState) error
	// LoadState returns the stored state for identity, or nil if there is none.
	LoadState(identity string) (*PersistedState, error)
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the entry identifier generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithIdentity sets the identity the store starts with.
func WithIdentity(identity string) Option {
	return func(s *Store) {
		s.identity = identity
	}
}

// Store is the single mutable source of truth for the CV document.
type Store struct {
	mu       sync.Mutex
	identity string
	snap     types.Snapshot
	meta     types.SyncMeta
	revision uint64

	persister Persister
	logger    *zap.Logger
	newID     func() string

	subsMu  sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New creates an empty store.
//
// If persister is nil the store is memory-only. If logger is nil, logging is
// discarded.
func New(persister Persister, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		snap:      types.EmptySnapshot(),
		persister: persister,
		logger:    logger.Named("store"),
		newID:     uuid.NewString,
		subs:      make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for every change and returns a function that removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) notify(ch Change) {
	s.subsMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// mutate applies fn under the lock. When fn reports a change, the revision is
// bumped, the state is marked dirty, persisted and subscribers are notified.
func (s *Store) mutate(fn func(snap *types.Snapshot) bool) bool {
	s.mu.Lock()
	if !fn(&s.snap) {
		s.mu.Unlock()
		return false
	}
	s.revision++
	s.meta.IsDirty = true
	s.persistLocked()
	ch := s.changeLocked(ChangeMutation)
	s.mu.Unlock()

	s.notify(ch)
	return true
}

func (s *Store) changeLocked(kind ChangeKind) Change {
	return Change{
		Kind:     kind,
		Identity: s.identity,
		Revision: s.revision,
		Dirty:    s.meta.IsDirty,
	}
}

// persistLocked writes the current state through the persister. Errors are
// logged only.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	state := &PersistedState{
		Snapshot: s.snap.Clone(),
		Meta:     cloneMeta(s.meta),
	}
	if err := s.persister.SaveState(s.identity, state); err != nil {
		s.logger.Warn("failed to persist local state",
			zap.String("identity", s.identity),
			zap.Uint64("revision", s.revision),
			zap.Error(err))
	}
}

func cloneMeta(m types.SyncMeta) types.SyncMeta {
	out := m
	if m.LastSyncedAt != nil {
		t := *m.LastSyncedAt
		out.LastSyncedAt = &t
	}
	return out
}

// Snapshot returns a deep copy of the document, visibility map and template.
func (s *Store) Snapshot() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// SnapshotAt returns a deep copy together with the revision it reflects.
func (s *Store) SnapshotAt() (types.Snapshot, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone(), s.revision
}

// Document returns a deep copy of the document.
func (s *Store) Document() types.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Document.Clone()
}

// Visibility returns a normalized copy of the visibility map.
func (s *Store) Visibility() types.Visibility {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Visibility.Normalize()
}

// TemplateID returns the selected template.
func (s *Store) TemplateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.TemplateID
}

// IsDirty reports whether local state has diverged from the last acknowledged push.
func (s *Store) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.IsDirty
}

// LastSyncedAt returns the time of the last successful push or load, if any.
func (s *Store) LastSyncedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMeta(s.meta).LastSyncedAt
}

// Meta returns a copy of the sync metadata.
func (s *Store) Meta() types.SyncMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMeta(s.meta)
}

// Revision returns the current revision counter.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Identity returns the identity the store currently belongs to.
func (s *Store) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetSummary replaces the free-text summary.
func (s *Store) SetSummary(text string) {
	s.mutate(func(snap *types.Snapshot) bool {
		snap.Document.Summary = text
		return true
	})
}

// UpdateProfile applies fn to the profile block.
func (s *Store) UpdateProfile(fn func(p *types.Profile)) {
	s.mutate(func(snap *types.Snapshot) bool {
		fn(&snap.Document.Profile)
		return true
	})
}

// SetProfileField sets a single profile field by its JSON name
// (firstName, lastName, headline, email, phone, location, website, linkedin, github).
func (s *Store) SetProfileField(name, value string) error {
	if profileField(&types.Profile{}, name) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	s.mutate(func(snap *types.Snapshot) bool {
		*profileField(&snap.Document.Profile, name) = value
		return true
	})
	return nil
}

// SetVisibility sets the visibility flag of an optional section.
func (s *Store) SetVisibility(sec types.Section, visible bool) {
	s.mutate(func(snap *types.Snapshot) bool {
		v := snap.Visibility.Normalize()
		v[sec] = visible
		snap.Visibility = v
		return true
	})
}

// ToggleVisibility flips the visibility flag of sec and returns the new value.
func (s *Store) ToggleVisibility(sec types.Section) bool {
	var visible bool
	s.mutate(func(snap *types.Snapshot) bool {
		v := snap.Visibility.Normalize()
		visible = !v.IsVisible(sec)
		v[sec] = visible
		snap.Visibility = v
		return true
	})
	return visible
}

// SetTemplate selects the rendering template.
func (s *Store) SetTemplate(id string) {
	s.mutate(func(snap *types.Snapshot) bool {
		snap.TemplateID = id
		return true
	})
}

// ReplaceDocument swaps in a whole document, e.g. from a file import.
// Entries without an identifier keep the one of the current entry with the
// same content or, failing that, at the same position. Any entry still
// missing an identifier, or carrying a duplicate, gets a fresh one.
func (s *Store) ReplaceDocument(doc types.Document) {
	doc = doc.Clone()
	s.mutate(func(snap *types.Snapshot) bool {
		cur := snap.Document
		doc.Work = reassignIDs(carryIDs(cur.Work, doc.Work), s.newID)
		doc.Education = reassignIDs(carryIDs(cur.Education, doc.Education), s.newID)
		doc.Projects = reassignIDs(carryIDs(cur.Projects, doc.Projects), s.newID)
		doc.Skills = reassignIDs(carryIDs(cur.Skills, doc.Skills), s.newID)
		doc.Interests = reassignIDs(carryIDs(cur.Interests, doc.Interests), s.newID)
		doc.References = reassignIDs(carryIDs(cur.References, doc.References), s.newID)
		snap.Document = doc
		return true
	})
}

// Hydrate applies state loaded from the remote store. It does not mark the
// store dirty; syncedAt becomes the last-synced timestamp.
func (s *Store) Hydrate(snap types.Snapshot, syncedAt time.Time) {
	s.mu.Lock()
	s.snap = snap.Clone()
	if s.snap.TemplateID == "" {
		s.snap.TemplateID = types.DefaultTemplateID
	}
	s.revision++
	at := syncedAt
	s.meta = types.SyncMeta{LastSyncedAt: &at, IsDirty: false}
	s.persistLocked()
	ch := s.changeLocked(ChangeHydrate)
	s.mu.Unlock()

	s.notify(ch)
}

// MarkSynced records a successful push of revision. The dirty flag is cleared
// only if no mutation happened since that revision was read. It reports
// whether the store is clean afterwards.
func (s *Store) MarkSynced(revision uint64, at time.Time) bool {
	s.mu.Lock()
	t := at
	s.meta.LastSyncedAt = &t
	if revision == s.revision {
		s.meta.IsDirty = false
	}
	clean := !s.meta.IsDirty
	s.persistLocked()
	ch := s.changeLocked(ChangeSynced)
	s.mu.Unlock()

	s.notify(ch)
	return clean
}

// Reset empties the store and assigns it to identity. The revision keeps
// increasing so acknowledgments for the previous identity cannot clear the
// new state. Nothing is persisted.
func (s *Store) Reset(identity string) {
	s.mu.Lock()
	s.identity = identity
	s.snap = types.EmptySnapshot()
	s.meta = types.SyncMeta{}
	s.revision++
	ch := s.changeLocked(ChangeReset)
	s.mu.Unlock()

	s.notify(ch)
}

// Restore reloads persisted local state for identity. It reports whether any
// state was found. The store is switched to identity either way; without
// saved state it starts empty.
func (s *Store) Restore(identity string) (bool, error) {
	var (
		state *PersistedState
		err   error
	)
	if s.persister != nil {
		state, err = s.persister.LoadState(identity)
		if err != nil {
			return false, fmt.Errorf("failed to load local state: %w", err)
		}
	}

	s.mu.Lock()
	s.identity = identity
	if state != nil {
		s.snap = state.Snapshot.Clone()
		if s.snap.TemplateID == "" {
			s.snap.TemplateID = types.DefaultTemplateID
		}
		s.meta = cloneMeta(state.Meta)
	} else {
		s.snap = types.EmptySnapshot()
		s.meta = types.SyncMeta{}
	}
	s.revision++
	ch := s.changeLocked(ChangeRestore)
	s.mu.Unlock()

	s.notify(ch)
	return state != nil, nil
}

func profileField(p *types.Profile, name string) *string {
	switch name {
	case "firstName", "firstname", "first_name":
		return &p.FirstName
	case "lastName", "lastname", "last_name":
		return &p.LastName
	case "headline":
		return &p.Headline
	case "email":
		return &p.Email
	case "phone":
		return &p.Phone
	case "location":
		return &p.Location
	case "website":
		return &p.Website
	case "linkedin":
		return &p.LinkedIn
	case "github":
		return &p.GitHub
	}
	return nil
}
