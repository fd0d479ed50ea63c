// Package store holds the authoritative, in-memory CV document for one
// editing session.
//
// Overview
//
// The Store owns the document, its visibility map, the selected template and
// the sync metadata (dirty flag and last-synced timestamp). Everything else in
// cvsync reads from it:
//
//	form collaborators (CLI, watcher, huh form)
//	     │  mutation API
//	     ▼
//	   Store ──write-through──▶ Persister (local SQLite)
//	     │
//	     ├── Subscribe ──▶ sync.Engine   (debounced push)
//	     └── Subscribe ──▶ render.Previewer (fingerprint invalidation)
//
// Mutations
//
// Every mutation is synchronous and total: it either applies fully or is a
// no-op. Mutations bump the revision and set the dirty flag. List entry
// identifiers are generated by the store on append and survive every update:
//
//	id := st.AddWork(types.WorkEntry{Company: "Acme"})
//	st.UpdateWork(id, func(e *types.WorkEntry) { e.Position = "Engineer" })
//	st.RemoveWork(id)
//
// Updating or removing an unknown identifier returns false and changes
// nothing, so stale references left behind by a concurrent removal are
// harmless.
//
// Sync entry points
//
// Hydrate, MarkSynced, Reset and Restore are reserved for the sync engine.
// Hydrate applies a remote load without marking the state dirty. MarkSynced
// clears the dirty flag only when the acknowledged revision is still the
// current one, so an edit made while a push was in flight is never lost.
//
// Persistence
//
// After each mutation the full state is written through the Persister. Write
// failures are logged and swallowed: the in-memory state stays authoritative
// for the rest of the session.
package store
