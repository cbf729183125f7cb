package driftsync

import "time"

// Strategy selects how conflicting edits are resolved. Chosen once per
// engine, not per conflict.
type Strategy string

const (
	// ServerWins keeps the remote copy.
	ServerWins Strategy = "server_wins"
	// LocalWins keeps the local copy.
	LocalWins Strategy = "local_wins"
	// LastWriteWins keeps whichever copy was modified most recently.
	// Requires Timestamped entities; falls back to ServerWins otherwise.
	LastWriteWins Strategy = "last_write_wins"
	// Manual defers to a registered conflict handler.
	Manual Strategy = "manual"
)

// Conflict is raised when a pulled record targets an entity that has
// unsynced local changes. It is a resolution event, not persisted state;
// at most one is raised per entity per pass.
type Conflict[T Syncable] struct {
	EntityID   string
	EntityType string
	Local      T
	Remote     T

	// Resolved and IsResolved are populated by the resolver, or by the
	// conflict handler under the Manual strategy.
	Resolved   T
	IsResolved bool
}

// ConflictHandler is invoked synchronously for each conflict under the
// Manual strategy. It decides by setting Resolved and IsResolved on the
// conflict before returning; leaving IsResolved false defers the entity
// to a later pass.
type ConflictHandler[T Syncable] func(*Conflict[T])

// Resolver decides the outcome of a conflict under a fixed strategy. It
// never touches the repository; the engine applies whatever it returns.
type Resolver[T Syncable] struct {
	strategy Strategy
	handler  ConflictHandler[T]
}

func NewResolver[T Syncable](strategy Strategy, handler ConflictHandler[T]) *Resolver[T] {
	return &Resolver[T]{
		strategy: strategy,
		handler:  handler,
	}
}

// Resolve returns the winning entity and true, or declines with false in
// which case the local entity stays pending.
func (r *Resolver[T]) Resolve(c *Conflict[T]) (T, bool) {
	switch r.strategy {
	case LocalWins:
		return r.resolved(c, c.Local), true
	case LastWriteWins:
		return r.resolved(c, lastWrite(c.Local, c.Remote)), true
	case Manual:
		if r.handler == nil {
			var zero T
			return zero, false
		}
		r.handler(c)
		if !c.IsResolved {
			var zero T
			return zero, false
		}
		return c.Resolved, true
	default:
		// ServerWins
		return r.resolved(c, c.Remote), true
	}
}

func (r *Resolver[T]) resolved(c *Conflict[T], winner T) T {
	c.Resolved = winner
	c.IsResolved = true
	return winner
}

// lastWrite picks the side with the newer write time. Ties and missing
// timestamps go to the remote side.
func lastWrite[T Syncable](local, remote T) T {
	lt, lok := any(local).(Timestamped)
	rt, rok := any(remote).(Timestamped)
	if !lok || !rok {
		return remote
	}
	if writeTime(lt).After(writeTime(rt)) {
		return local
	}
	return remote
}

func writeTime(ts Timestamped) time.Time {
	if m := ts.ModifiedTime(); !m.IsZero() {
		return m
	}
	return ts.CreatedTime()
}
