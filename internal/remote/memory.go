package remote

import (
	"context"
	"sync"
	"time"

	"github.com/resumely/cvsync/internal/types"
)

// MemoryStore is an in-memory DocumentStore intended for tests, examples and
// offline sessions. It counts calls so callers can assert on remote traffic.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	saves   []SaveCall
	loads   int
	err     error
	now     func() time.Time
}

// SaveCall records one Save invocation.
type SaveCall struct {
	Identity string
	Snapshot types.Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// SetError makes every following call fail with err until it is reset with nil.
func (s *MemoryStore) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// SetClock overrides the time source used for UpdatedAt.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Put stores a record directly, bypassing the call log.
func (s *MemoryStore) Put(identity string, snap types.Snapshot, updatedAt time.Time) {
	s.mu.Lock()
	s.records[identity] = Record{Snapshot: snap.Clone(), UpdatedAt: updatedAt}
	s.mu.Unlock()
}

// Load implements DocumentStore.
func (s *MemoryStore) Load(_ context.Context, identity string) (*Record, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[identity]
	if !ok {
		return nil, nil
	}
	return &Record{Snapshot: rec.Snapshot.Clone(), UpdatedAt: rec.UpdatedAt}, nil
}

// Save implements DocumentStore.
func (s *MemoryStore) Save(_ context.Context, identity string, snap types.Snapshot) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, SaveCall{Identity: identity, Snapshot: snap.Clone()})
	if s.err != nil {
		return s.err
	}
	s.records[identity] = Record{Snapshot: snap.Clone(), UpdatedAt: s.now()}
	return nil
}

// Saves returns every Save call made so far, including failed ones.
func (s *MemoryStore) Saves() []SaveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SaveCall(nil), s.saves...)
}

// Loads returns the number of Load calls.
func (s *MemoryStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
