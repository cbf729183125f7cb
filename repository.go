package driftsync

import (
	"context"
	"time"
)

// Repository is the durable local store the engine syncs from and into.
// Implementations must serialize their own concurrent access; the engine
// never runs two passes at once but hosts may read while a pass runs.
type Repository[T Syncable] interface {
	// Pending returns the queued records awaiting upload, oldest first.
	Pending(ctx context.Context) ([]Record[T], error)

	// All returns every entity currently stored.
	All(ctx context.Context) ([]T, error)

	// Add inserts an entity that arrived from the server.
	Add(ctx context.Context, entity T) error

	// Update overwrites an entity with the server copy or a resolved merge.
	Update(ctx context.Context, entity T) error

	// Delete removes the entity when the server reports it deleted.
	Delete(ctx context.Context, id string) error

	// MarkSynced clears the pending state of an entity after its change
	// was uploaded or the server copy was applied.
	MarkSynced(ctx context.Context, id string, at time.Time) error

	// MarkFailed records why an entity could not be uploaded. The entity
	// stays pending and is retried on the next pass.
	MarkFailed(ctx context.Context, id string, reason string) error
}

// CheckpointStore persists the last pull token between passes.
type CheckpointStore interface {
	Checkpoint(ctx context.Context) (Version, error)
	SetCheckpoint(ctx context.Context, v Version) error
}
