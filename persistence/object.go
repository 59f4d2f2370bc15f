package persistence

import (
	"context"
	"database/sql"
	"sync/atomic"
)

// PersistedObject is any domain entity capable of serializing itself
// into a database via a synchronous save, populating itself from a
// filter string via a synchronous load, and enabling its own
// auto-save mode once initially loaded.
//
// Implementations embed Coalescer to satisfy intentSlot, the
// unexported method the daemon uses to find the atomic context
// pointer that arbitrates save coalescing (see SaveIntent).
type PersistedObject interface {
	// Save writes the object's current state through db. Called with
	// the daemon's live connection; must not block beyond the query
	// itself.
	Save(ctx context.Context, db *sql.DB) error

	// Load populates the object from the row(s) matching filter.
	Load(ctx context.Context, db *sql.DB, filter string) error

	// EnableAutoSave marks the object as eligible to re-enter the
	// save queue after mutation. The daemon calls this once, after a
	// successful Load.
	EnableAutoSave()

	intentSlot() *atomic.Pointer[SaveIntent]
}
