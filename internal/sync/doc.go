// Package sync keeps the local document store and the remote document store
// in step.
//
// Overview
//
// Editing is local-first: every mutation lands in the store (and its local
// SQLite write-through) immediately and marks the state dirty. The engine
// pushes the whole snapshot to the remote store once the user has stopped
// editing for a quiet period.
//
//	Store mutation ──► PendingPush ──(quiet period)──► Pushing ──► Idle
//	                       ▲                              │
//	                       └──── failure / new edits ─────┘
//
// Pushes are strictly sequential. A debounce that fires while a push is in
// flight is deferred until that push completes. The dirty flag is cleared only
// when the acknowledged revision is still the store's current revision, so an
// edit made during a push is never marked as synced.
//
// Refocus
//
// When the editing surface regains focus the remote record is fetched again.
// Dirty local state always wins; if the remote changed since the last sync a
// Conflict event is emitted so the user can be told. Clean local state adopts
// a changed remote record.
//
// Identity
//
// SwitchIdentity cancels pending timers, bumps a generation counter and resets
// the store. Results of operations started for an older generation are dropped
// when they complete. Unpushed edits of the previous identity stay in local
// storage and are pushed the next time that identity starts.
//
// Usage
//
//	engine := sync.New(st, docs, migrator, nil)
//	if err := engine.Start(ctx, "user-123"); err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	st.SetSummary("Go engineer")   // pushed ~2s later
//	_ = engine.Flush(ctx)           // or push right now
package sync
