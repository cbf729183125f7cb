package driftsync

import "time"

// Syncable is the capability an entity type must implement to participate
// in synchronization. Identity is a compile-time requirement; there is no
// runtime field discovery.
type Syncable interface {
	// SyncID returns the stable identity of the entity, immutable for the
	// entity's lifetime.
	SyncID() string

	// Pending reports whether the entity carries local changes not yet
	// acknowledged by the server.
	Pending() bool
}

// Timestamped is an optional capability for entities that track audit
// times. The LastWriteWins strategy requires it on both sides of a
// conflict and falls back to ServerWins without it.
type Timestamped interface {
	CreatedTime() time.Time
	ModifiedTime() time.Time
}

// Entity is the contract the bundled repository implementations require
// on top of Syncable. WithPending returns a copy of the entity with its
// pending flag set, letting a store flip sync state without knowing the
// entity's shape. The engine itself only needs Syncable.
type Entity[T any] interface {
	Syncable
	WithPending(pending bool) T
}
