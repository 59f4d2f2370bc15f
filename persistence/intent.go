package persistence

import "time"

// SaveIntent is one queued "please save this object" request. The
// daemon links pending intents into a singly-linked list (head/tail
// in saveQueue) rather than a slice, so an entry already in flight
// can be dropped in O(1) once superseded.
//
// Coalescing works through pointer identity: pend(obj) allocates a
// fresh SaveIntent and atomically stores it in obj's Coalescer slot.
// When the worker loop peeks the head of the queue, it re-reads the
// object's slot; if the pointer there no longer matches the intent at
// the head, a newer save was requested meanwhile and this one is a
// tombstone — dropped without touching the database.
type SaveIntent struct {
	object   PersistedObject
	deadline time.Time
	next     *SaveIntent
}

// LoadIntent is one queued "please load this object" request. Loads
// never coalesce — each one targets a distinct filter — so LoadIntent
// carries its own linked-list pointer independent of SaveIntent.
type LoadIntent struct {
	object PersistedObject
	filter string
	done   chan error
	next   *LoadIntent
}
