package driftsync

import "context"

// RemoteClient talks to the sync endpoint on behalf of the engine. All
// methods may fail on transport errors; the engine converts such failures
// into pass results and never lets them escape raw.
type RemoteClient[T Syncable] interface {
	// IsOnline probes connectivity. False or an error aborts the pass
	// before any repository mutation.
	IsOnline(ctx context.Context) (bool, error)

	// Push uploads a single record.
	Push(ctx context.Context, rec Record[T]) error

	// PushBatch uploads a batch in one round trip and returns how many
	// records the server accepted.
	PushBatch(ctx context.Context, recs []Record[T]) (int, error)

	// Pull returns the records committed after the given token, plus the
	// next token to checkpoint. Every record with a version greater than
	// since must eventually be returned.
	Pull(ctx context.Context, since Version) ([]Record[T], Version, error)

	// ServerVersion returns the server's current version head. Hosts can
	// compare it against their checkpoint to skip no-op passes.
	ServerVersion(ctx context.Context) (Version, error)
}
