// Package memstore provides an in-memory repository and checkpoint store.
// It backs tests and short-lived hosts; nothing survives a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/store"
)

// Store holds entities, the outbound queue and the pull checkpoint behind
// one mutex. It implements driftsync.Repository and
// driftsync.CheckpointStore.
type Store[T driftsync.Entity[T]] struct {
	mu         sync.RWMutex
	entities   map[string]T
	outbox     map[string]driftsync.Record[T]
	order      []string
	failures   map[string]string
	syncedAt   map[string]time.Time
	checkpoint driftsync.Version
}

func New[T driftsync.Entity[T]]() *Store[T] {
	return &Store[T]{
		entities: map[string]T{},
		outbox:   map[string]driftsync.Record[T]{},
		failures: map[string]string{},
		syncedAt: map[string]time.Time{},
	}
}

// ============================================================
// Host-facing operations
// ============================================================

// Save upserts an entity and queues it for upload. Repeated saves of the
// same entity coalesce into a single queued record that keeps its place
// in the queue; an entity queued as an insert stays an insert until the
// server has seen it.
func (s *Store[T]) Save(ctx context.Context, entity T) error {
	id := entity.SyncID()

	s.mu.Lock()
	defer s.mu.Unlock()

	flagged := entity.WithPending(true)

	op := driftsync.OpUpdate
	if prev, queued := s.outbox[id]; queued {
		op = prev.Op
		if op == driftsync.OpDelete {
			// Deleted then recreated before a pass ran.
			op = driftsync.OpUpdate
		}
	} else if _, exists := s.entities[id]; !exists {
		op = driftsync.OpInsert
	}

	s.entities[id] = flagged
	if _, queued := s.outbox[id]; !queued {
		s.order = append(s.order, id)
	}
	s.outbox[id] = driftsync.NewRecord(op, flagged)
	return nil
}

// Remove deletes an entity locally and queues a tombstone. An entity the
// server never saw is dropped outright, queue entry included.
func (s *Store[T]) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.entities[id]
	prev, queued := s.outbox[id]
	if !exists && !queued {
		return store.ErrNotFound
	}

	delete(s.entities, id)
	if queued && prev.Op == driftsync.OpInsert {
		s.dropQueued(id)
		return nil
	}

	if !queued {
		s.order = append(s.order, id)
	}
	s.outbox[id] = driftsync.NewTombstone[T](id)
	return nil
}

// Get returns the stored entity or store.ErrNotFound.
func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		var zero T
		return zero, store.ErrNotFound
	}
	return entity, nil
}

// Count returns the number of stored entities.
func (s *Store[T]) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Failures returns a copy of the per-entity upload failure reasons.
func (s *Store[T]) Failures() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.failures))
	for id, reason := range s.failures {
		out[id] = reason
	}
	return out
}

// LastSyncedAt returns when the entity last left the pending state.
func (s *Store[T]) LastSyncedAt(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.syncedAt[id]
	return at, ok
}

// ============================================================
// driftsync.Repository
// ============================================================

func (s *Store[T]) Pending(ctx context.Context) ([]driftsync.Record[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]driftsync.Record[T], 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.outbox[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store[T]) All(ctx context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0, len(s.entities))
	for _, entity := range s.entities {
		out = append(out, entity)
	}
	return out, nil
}

func (s *Store[T]) Add(ctx context.Context, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.SyncID()] = entity
	return nil
}

func (s *Store[T]) Update(ctx context.Context, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.SyncID()] = entity
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entities, id)
	s.dropQueued(id)
	return nil
}

func (s *Store[T]) MarkSynced(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropQueued(id)
	if entity, ok := s.entities[id]; ok {
		s.entities[id] = entity.WithPending(false)
	}
	s.syncedAt[id] = at
	return nil
}

func (s *Store[T]) MarkFailed(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = reason
	return nil
}

// dropQueued removes the id from the outbox, queue order and failure
// bookkeeping. Caller holds the lock.
func (s *Store[T]) dropQueued(id string) {
	delete(s.outbox, id)
	delete(s.failures, id)
	for i, queued := range s.order {
		if queued == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// ============================================================
// driftsync.CheckpointStore
// ============================================================

func (s *Store[T]) Checkpoint(ctx context.Context) (driftsync.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint, nil
}

func (s *Store[T]) SetCheckpoint(ctx context.Context, v driftsync.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = v
	return nil
}
