package driftsync

import (
	"time"

	"github.com/google/uuid"
)

// Version is a server-assigned, strictly increasing token that orders
// committed records. It carries no wall-clock meaning; clients treat it as
// opaque. Zero reads the delta stream from the beginning.
type Version int64

// Record is the envelope a change travels in: the entity snapshot plus
// the metadata needed to upload, order and replay it.
type Record[T Syncable] struct {
	// ID uniquely identifies this change. The server uses it to
	// deduplicate replays of the same record.
	ID string

	// EntityID is the identity of the entity the change applies to.
	EntityID string

	// Op is the kind of change.
	Op Op

	// Entity is the snapshot after the change. Zero value for deletes.
	Entity T

	// Version is the server-assigned commit token. Zero until the server
	// accepts the record.
	Version Version

	// LocalTime is the host's clock at the moment the change was queued.
	// Advisory only; ordering comes from Version.
	LocalTime time.Time
}

// NewRecord wraps an entity change into a fresh record envelope.
func NewRecord[T Syncable](op Op, entity T) Record[T] {
	return Record[T]{
		ID:        uuid.NewString(),
		EntityID:  entity.SyncID(),
		Op:        op,
		Entity:    entity,
		LocalTime: time.Now().UTC(),
	}
}

// NewTombstone wraps a deletion into a record envelope. The entity
// snapshot stays zero; only the id travels.
func NewTombstone[T Syncable](id string) Record[T] {
	return Record[T]{
		ID:        uuid.NewString(),
		EntityID:  id,
		Op:        OpDelete,
		LocalTime: time.Now().UTC(),
	}
}
