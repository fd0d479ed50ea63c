package sync

import (
	"time"

	"github.com/resumely/cvsync/internal/types"
)

// State is the push state of the engine.
type State int

const (
	// Idle means nothing is waiting to be pushed.
	Idle State = iota
	// PendingPush means local edits wait for the quiet period or a retry.
	PendingPush
	// Pushing means a remote save is in flight.
	Pushing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingPush:
		return "pending"
	case Pushing:
		return "pushing"
	default:
		return "unknown"
	}
}

// EventKind classifies engine events.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventPushed
	EventPushFailed
	EventConflict
	EventHydrated
	EventIdentityChanged
	EventLoadFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventPushed:
		return "pushed"
	case EventPushFailed:
		return "push_failed"
	case EventConflict:
		return "conflict"
	case EventHydrated:
		return "hydrated"
	case EventIdentityChanged:
		return "identity"
	case EventLoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Fields beyond Kind, Identity and State
// are set depending on the kind.
type Event struct {
	Kind     EventKind
	Identity string
	State    State
	Revision uint64 // EventPushed
	Err      error  // EventPushFailed, EventLoadFailed
	Conflict *Conflict
}

// Conflict reports that the remote record changed while local edits were
// pending. Local state is kept; the remote snapshot is attached for display.
type Conflict struct {
	Identity        string
	RemoteUpdatedAt time.Time
	LastSyncedAt    *time.Time
	Remote          types.Snapshot
}
