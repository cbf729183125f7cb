// Package boltstore persists entities, the outbound queue and the pull
// checkpoint in a BoltDB file. It trades SQL queryability for a single
// pure-Go dependency; hosts that only ever access entities by id lose
// nothing.
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.etcd.io/bbolt"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/store"
)

var (
	bucketEntities  = []byte("entities")
	bucketOutbox    = []byte("outbox")
	bucketOutboxIdx = []byte("outbox_idx")
	bucketState     = []byte("state")
)

// queuedRecord is the stored form of an outbound record. The payload is
// the entity snapshot; tombstones carry none.
type queuedRecord struct {
	RecordID  string          `json:"recordId"`
	EntityID  string          `json:"entityId"`
	Op        string          `json:"op"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	QueuedAt  time.Time       `json:"queuedAt"`
	LastError string          `json:"lastError,omitempty"`
}

// Store implements driftsync.Repository and driftsync.CheckpointStore on
// BoltDB. Outbox keys are big-endian sequence numbers, so a cursor walk
// yields records oldest first; a coalesced re-edit keeps its sequence.
type Store[T driftsync.Entity[T]] struct {
	db  *bbolt.DB
	typ string
}

// Open creates or opens the store database at the given path.
func Open[T driftsync.Entity[T]](path string, entityType string) (*Store[T], error) {
	if entityType == "" {
		return nil, fmt.Errorf("entity type is required")
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Store[T]{db: db, typ: entityType}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return s, nil
}

// Close closes the database file.
func (s *Store[T]) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store[T]) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEntities, bucketOutbox, bucketOutboxIdx, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// ============================================================
// Host-facing operations
// ============================================================

// Save upserts an entity and queues it for upload. Repeated saves
// coalesce into one queued record that keeps its queue position.
func (s *Store[T]) Save(ctx context.Context, entity T) error {
	id := entity.SyncID()
	flagged := entity.WithPending(true)

	payload, err := json.Marshal(flagged)
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", id, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		entities := tx.Bucket(bucketEntities)
		outbox := tx.Bucket(bucketOutbox)
		idx := tx.Bucket(bucketOutboxIdx)

		op := driftsync.OpUpdate
		seqKey := idx.Get([]byte(id))
		switch {
		case seqKey != nil:
			var prev queuedRecord
			if err := json.Unmarshal(outbox.Get(seqKey), &prev); err != nil {
				return fmt.Errorf("failed to unmarshal queued record %s: %w", id, err)
			}
			op = driftsync.Op(prev.Op)
			if op == driftsync.OpDelete {
				// Deleted then recreated before a pass ran.
				op = driftsync.OpUpdate
			}
		case entities.Get([]byte(id)) == nil:
			op = driftsync.OpInsert
		}

		if err := entities.Put([]byte(id), payload); err != nil {
			return fmt.Errorf("failed to save entity %s: %w", id, err)
		}

		if seqKey == nil {
			seq, err := outbox.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to assign queue position: %w", err)
			}
			seqKey = itob(seq)
		}

		rec := driftsync.NewRecord(op, flagged)
		return s.putQueued(outbox, idx, seqKey, queuedRecord{
			RecordID: rec.ID,
			EntityID: id,
			Op:       string(rec.Op),
			Payload:  json.RawMessage(payload),
			QueuedAt: rec.LocalTime,
		})
	})
}

// Remove deletes an entity locally and queues a tombstone. An entity the
// server never saw is dropped outright, queue entry included.
func (s *Store[T]) Remove(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		entities := tx.Bucket(bucketEntities)
		outbox := tx.Bucket(bucketOutbox)
		idx := tx.Bucket(bucketOutboxIdx)

		seqKey := idx.Get([]byte(id))
		exists := entities.Get([]byte(id)) != nil
		if !exists && seqKey == nil {
			return store.ErrNotFound
		}

		if err := entities.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete entity %s: %w", id, err)
		}

		if seqKey != nil {
			var prev queuedRecord
			if err := json.Unmarshal(outbox.Get(seqKey), &prev); err != nil {
				return fmt.Errorf("failed to unmarshal queued record %s: %w", id, err)
			}
			if driftsync.Op(prev.Op) == driftsync.OpInsert {
				// The server never saw it; nothing travels at all.
				return s.dropQueued(outbox, idx, id, seqKey)
			}
		} else {
			seq, err := outbox.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to assign queue position: %w", err)
			}
			seqKey = itob(seq)
		}

		rec := driftsync.NewTombstone[T](id)
		return s.putQueued(outbox, idx, seqKey, queuedRecord{
			RecordID: rec.ID,
			EntityID: id,
			Op:       string(rec.Op),
			QueuedAt: rec.LocalTime,
		})
	})
}

// Get returns the stored entity or store.ErrNotFound.
func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var entity T
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEntities).Get([]byte(id))
		if data == nil {
			return store.ErrNotFound
		}
		if err := json.Unmarshal(data, &entity); err != nil {
			return fmt.Errorf("failed to unmarshal entity %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return entity, nil
}

// Count returns the number of stored entities.
func (s *Store[T]) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketEntities).Stats().KeyN
		return nil
	})
	return count, err
}

// Failures returns the per-entity upload failure reasons still queued.
func (s *Store[T]) Failures(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutbox).ForEach(func(k, v []byte) error {
			var q queuedRecord
			if err := json.Unmarshal(v, &q); err != nil {
				return fmt.Errorf("failed to unmarshal queued record: %w", err)
			}
			if q.LastError != "" {
				out[q.EntityID] = q.LastError
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================
// driftsync.Repository
// ============================================================

func (s *Store[T]) Pending(ctx context.Context) ([]driftsync.Record[T], error) {
	var records []driftsync.Record[T]
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Sequence keys are big-endian, so cursor order is queue order.
		return tx.Bucket(bucketOutbox).ForEach(func(k, v []byte) error {
			var q queuedRecord
			if err := json.Unmarshal(v, &q); err != nil {
				return fmt.Errorf("failed to unmarshal queued record: %w", err)
			}

			rec := driftsync.Record[T]{
				ID:        q.RecordID,
				EntityID:  q.EntityID,
				Op:        driftsync.Op(q.Op),
				LocalTime: q.QueuedAt,
			}
			if rec.Op != driftsync.OpDelete && len(q.Payload) > 0 {
				if err := json.Unmarshal(q.Payload, &rec.Entity); err != nil {
					return fmt.Errorf("failed to unmarshal queued entity %s: %w", q.EntityID, err)
				}
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store[T]) All(ctx context.Context) ([]T, error) {
	var entities []T
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntities).ForEach(func(k, v []byte) error {
			var entity T
			if err := json.Unmarshal(v, &entity); err != nil {
				return fmt.Errorf("failed to unmarshal entity %s: %w", k, err)
			}
			entities = append(entities, entity)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (s *Store[T]) Add(ctx context.Context, entity T) error {
	return s.put(entity)
}

func (s *Store[T]) Update(ctx context.Context, entity T) error {
	return s.put(entity)
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketEntities).Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete entity %s: %w", id, err)
		}
		outbox := tx.Bucket(bucketOutbox)
		idx := tx.Bucket(bucketOutboxIdx)
		if seqKey := idx.Get([]byte(id)); seqKey != nil {
			return s.dropQueued(outbox, idx, id, seqKey)
		}
		return nil
	})
}

func (s *Store[T]) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		entities := tx.Bucket(bucketEntities)
		outbox := tx.Bucket(bucketOutbox)
		idx := tx.Bucket(bucketOutboxIdx)

		if data := entities.Get([]byte(id)); data != nil {
			var entity T
			if err := json.Unmarshal(data, &entity); err != nil {
				return fmt.Errorf("failed to unmarshal entity %s: %w", id, err)
			}
			cleared, err := json.Marshal(entity.WithPending(false))
			if err != nil {
				return fmt.Errorf("failed to marshal entity %s: %w", id, err)
			}
			if err := entities.Put([]byte(id), cleared); err != nil {
				return fmt.Errorf("failed to mark entity %s synced: %w", id, err)
			}
		}

		state := tx.Bucket(bucketState)
		if err := state.Put([]byte("synced_at:"+id), []byte(at.UTC().Format(time.RFC3339))); err != nil {
			return fmt.Errorf("failed to record sync time for %s: %w", id, err)
		}

		if seqKey := idx.Get([]byte(id)); seqKey != nil {
			return s.dropQueued(outbox, idx, id, seqKey)
		}
		return nil
	})
}

func (s *Store[T]) MarkFailed(ctx context.Context, id string, reason string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		outbox := tx.Bucket(bucketOutbox)
		idx := tx.Bucket(bucketOutboxIdx)

		seqKey := idx.Get([]byte(id))
		if seqKey == nil {
			return nil
		}
		var q queuedRecord
		if err := json.Unmarshal(outbox.Get(seqKey), &q); err != nil {
			return fmt.Errorf("failed to unmarshal queued record %s: %w", id, err)
		}
		q.LastError = reason

		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to marshal queued record %s: %w", id, err)
		}
		return outbox.Put(seqKey, data)
	})
}

// ============================================================
// driftsync.CheckpointStore
// ============================================================

func (s *Store[T]) Checkpoint(ctx context.Context) (driftsync.Version, error) {
	var v driftsync.Version
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketState).Get(s.checkpointKey())
		if data != nil {
			v = driftsync.Version(binary.BigEndian.Uint64(data))
		}
		return nil
	})
	return v, err
}

func (s *Store[T]) SetCheckpoint(ctx context.Context, v driftsync.Version) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put(s.checkpointKey(), itob(uint64(v)))
	})
}

func (s *Store[T]) checkpointKey() []byte {
	return []byte("checkpoint:" + s.typ)
}

// ============================================================
// Internals
// ============================================================

func (s *Store[T]) put(entity T) error {
	id := entity.SyncID()
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", id, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketEntities).Put([]byte(id), payload); err != nil {
			return fmt.Errorf("failed to store entity %s: %w", id, err)
		}
		return nil
	})
}

func (s *Store[T]) putQueued(outbox, idx *bbolt.Bucket, seqKey []byte, q queuedRecord) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal queued record %s: %w", q.EntityID, err)
	}
	if err := outbox.Put(seqKey, data); err != nil {
		return fmt.Errorf("failed to queue record %s: %w", q.EntityID, err)
	}
	if err := idx.Put([]byte(q.EntityID), seqKey); err != nil {
		return fmt.Errorf("failed to index queued record %s: %w", q.EntityID, err)
	}
	return nil
}

func (s *Store[T]) dropQueued(outbox, idx *bbolt.Bucket, id string, seqKey []byte) error {
	if err := outbox.Delete(seqKey); err != nil {
		return fmt.Errorf("failed to dequeue %s: %w", id, err)
	}
	if err := idx.Delete([]byte(id)); err != nil {
		return fmt.Errorf("failed to drop queue index for %s: %w", id, err)
	}
	return nil
}

// itob encodes a sequence number as a sortable big-endian key.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
