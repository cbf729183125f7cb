// Package sqlstore persists entities, the outbound queue and the pull
// checkpoint in SQLite. It is the durable repository hosts reach for
// first: one file on disk, safe across restarts and crashes mid-pass.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/internal/db"
	"github.com/driftsync/driftsync/internal/utils"
	"github.com/driftsync/driftsync/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    pending INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    synced_at TEXT -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_entities_pending ON entities(pending);

CREATE TABLE IF NOT EXISTS outbox (
    entity_id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    record_id TEXT NOT NULL,
    op TEXT NOT NULL,
    payload TEXT NOT NULL,
    queued_at TEXT NOT NULL, -- RFC3339
    last_error TEXT
);

CREATE INDEX IF NOT EXISTS idx_outbox_seq ON outbox(seq);

CREATE TABLE IF NOT EXISTS sync_state (
    entity_type TEXT PRIMARY KEY,
    checkpoint INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
`

type outboxRow struct {
	EntityID  string         `db:"entity_id"`
	Seq       int64          `db:"seq"`
	RecordID  string         `db:"record_id"`
	Op        string         `db:"op"`
	Payload   string         `db:"payload"`
	QueuedAt  string         `db:"queued_at"`
	LastError sql.NullString `db:"last_error"`
}

// Store implements driftsync.Repository and driftsync.CheckpointStore on
// a single SQLite database. One Store handles one entity type; the type
// name keys the checkpoint row.
type Store[T driftsync.Entity[T]] struct {
	db     *sqlx.DB
	dbPath string
	typ    string
}

// Open creates or opens the store database at the given path.
func Open[T driftsync.Entity[T]](path string, entityType string) (*Store[T], error) {
	if entityType == "" {
		return nil, fmt.Errorf("entity type is required")
	}

	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	return &Store[T]{db: db, dbPath: path, typ: entityType}, nil
}

// Close closes the underlying database connection.
func (s *Store[T]) Close() error {
	if s.db == nil {
		return store.ErrClosed
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	slog.Debug("store closed", "path", s.dbPath)
	return nil
}

// ============================================================
// Host-facing operations
// ============================================================

// Save upserts an entity and queues it for upload inside one
// transaction. Repeated saves coalesce into a single queued record that
// keeps its place in the queue; an entity the server never saw stays
// queued as an insert.
func (s *Store[T]) Save(ctx context.Context, entity T) error {
	id := entity.SyncID()
	flagged := entity.WithPending(true)

	payload, err := json.Marshal(flagged)
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", id, err)
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	op, seq, err := s.nextQueueSlot(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (id, pending, payload) VALUES (?, 1, ?)
		 ON CONFLICT(id) DO UPDATE SET pending = 1, payload = excluded.payload`,
		id, string(payload),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save entity %s: %w", id, err)
	}

	rec := driftsync.NewRecord(op, flagged)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO outbox (entity_id, seq, record_id, op, payload, queued_at, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		id, seq, rec.ID, string(rec.Op), string(payload), rec.LocalTime.Format(time.RFC3339),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to queue entity %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save: %w", err)
	}
	return nil
}

// Remove deletes an entity locally and queues a tombstone. An entity the
// server never saw is dropped outright, queue entry included.
func (s *Store[T]) Remove(ctx context.Context, id string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var prev outboxRow
	queued := true
	if err := tx.GetContext(ctx, &prev, "SELECT seq, op FROM outbox WHERE entity_id = ?", id); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			tx.Rollback()
			return fmt.Errorf("failed to query outbox for %s: %w", id, err)
		}
		queued = false
	}

	var exists int
	if err := tx.GetContext(ctx, &exists, "SELECT COUNT(*) FROM entities WHERE id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to query entity %s: %w", id, err)
	}
	if exists == 0 && !queued {
		tx.Rollback()
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}

	if queued && driftsync.Op(prev.Op) == driftsync.OpInsert {
		// The server never saw it; nothing travels at all.
		if _, err := tx.ExecContext(ctx, "DELETE FROM outbox WHERE entity_id = ?", id); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to drop queued insert %s: %w", id, err)
		}
		return tx.Commit()
	}

	seq := prev.Seq
	if !queued {
		if err := tx.GetContext(ctx, &seq, "SELECT IFNULL(MAX(seq), 0) + 1 FROM outbox"); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to assign queue position: %w", err)
		}
	}

	rec := driftsync.NewTombstone[T](id)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO outbox (entity_id, seq, record_id, op, payload, queued_at, last_error)
		 VALUES (?, ?, ?, ?, '', ?, NULL)`,
		id, seq, rec.ID, string(rec.Op), rec.LocalTime.Format(time.RFC3339),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to queue tombstone %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remove: %w", err)
	}
	return nil
}

// Get returns the stored entity or store.ErrNotFound.
func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	var payload string
	err := s.db.GetContext(ctx, &payload, "SELECT payload FROM entities WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, store.ErrNotFound
		}
		return zero, fmt.Errorf("failed to query entity %s: %w", id, err)
	}

	var entity T
	if err := json.Unmarshal([]byte(payload), &entity); err != nil {
		return zero, fmt.Errorf("failed to unmarshal entity %s: %w", id, err)
	}
	return entity, nil
}

// Count returns the number of stored entities.
func (s *Store[T]) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM entities"); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

// Failures returns the per-entity upload failure reasons still queued.
func (s *Store[T]) Failures(ctx context.Context) (map[string]string, error) {
	var rows []outboxRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT entity_id, seq, last_error FROM outbox WHERE last_error IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.EntityID] = row.LastError.String
	}
	return out, nil
}

// ============================================================
// driftsync.Repository
// ============================================================

func (s *Store[T]) Pending(ctx context.Context) ([]driftsync.Record[T], error) {
	var rows []outboxRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT entity_id, seq, record_id, op, payload, queued_at, last_error FROM outbox ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}

	records := make([]driftsync.Record[T], 0, len(rows))
	for _, row := range rows {
		rec := driftsync.Record[T]{
			ID:       row.RecordID,
			EntityID: row.EntityID,
			Op:       driftsync.Op(row.Op),
		}

		if queuedAt, err := time.Parse(time.RFC3339, row.QueuedAt); err == nil {
			rec.LocalTime = queuedAt
		} else {
			slog.Warn("failed to parse queued_at", "entity_id", row.EntityID, "value", row.QueuedAt, "error", err)
		}

		if rec.Op != driftsync.OpDelete && row.Payload != "" {
			if err := json.Unmarshal([]byte(row.Payload), &rec.Entity); err != nil {
				return nil, fmt.Errorf("failed to unmarshal queued entity %s: %w", row.EntityID, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store[T]) All(ctx context.Context) ([]T, error) {
	var payloads []string
	if err := s.db.SelectContext(ctx, &payloads, "SELECT payload FROM entities"); err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	entities := make([]T, 0, len(payloads))
	for _, payload := range payloads {
		var entity T
		if err := json.Unmarshal([]byte(payload), &entity); err != nil {
			slog.Error("failed to unmarshal stored entity", "error", err)
			continue // Skip this entry if the payload is corrupt
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (s *Store[T]) Add(ctx context.Context, entity T) error {
	return s.put(ctx, entity)
}

func (s *Store[T]) Update(ctx context.Context, entity T) error {
	return s.put(ctx, entity)
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM outbox WHERE entity_id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to drop queued record %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *Store[T]) MarkSynced(ctx context.Context, id string, at time.Time) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var payload string
	err = tx.GetContext(ctx, &payload, "SELECT payload FROM entities WHERE id = ?", id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A synced tombstone; only the queue entry goes.
	case err != nil:
		tx.Rollback()
		return fmt.Errorf("failed to query entity %s: %w", id, err)
	default:
		var entity T
		if err := json.Unmarshal([]byte(payload), &entity); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to unmarshal entity %s: %w", id, err)
		}
		cleared, err := json.Marshal(entity.WithPending(false))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal entity %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE entities SET pending = 0, payload = ?, synced_at = ? WHERE id = ?",
			string(cleared), at.Format(time.RFC3339), id,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to mark entity %s synced: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM outbox WHERE entity_id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to dequeue %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mark synced: %w", err)
	}
	return nil
}

func (s *Store[T]) MarkFailed(ctx context.Context, id string, reason string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE outbox SET last_error = ? WHERE entity_id = ?", reason, id,
	); err != nil {
		return fmt.Errorf("failed to mark entity %s failed: %w", id, err)
	}
	return nil
}

// put writes a server-side copy without touching the queue.
func (s *Store[T]) put(ctx context.Context, entity T) error {
	id := entity.SyncID()
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", id, err)
	}

	pending := 0
	if entity.Pending() {
		pending = 1
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, pending, payload) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET pending = excluded.pending, payload = excluded.payload`,
		id, pending, string(payload),
	); err != nil {
		return fmt.Errorf("failed to store entity %s: %w", id, err)
	}
	return nil
}

// nextQueueSlot returns the op and queue position for an entity being
// queued. A queued entity keeps its op and position; a fresh one gets the
// tail and an op derived from whether the server has seen it.
func (s *Store[T]) nextQueueSlot(ctx context.Context, tx *sqlx.Tx, id string) (driftsync.Op, int64, error) {
	var prev outboxRow
	err := tx.GetContext(ctx, &prev, "SELECT seq, op FROM outbox WHERE entity_id = ?", id)
	if err == nil {
		op := driftsync.Op(prev.Op)
		if op == driftsync.OpDelete {
			// Deleted then recreated before a pass ran.
			op = driftsync.OpUpdate
		}
		return op, prev.Seq, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("failed to query outbox for %s: %w", id, err)
	}

	var exists int
	if err := tx.GetContext(ctx, &exists, "SELECT COUNT(*) FROM entities WHERE id = ?", id); err != nil {
		return "", 0, fmt.Errorf("failed to query entity %s: %w", id, err)
	}

	var seq int64
	if err := tx.GetContext(ctx, &seq, "SELECT IFNULL(MAX(seq), 0) + 1 FROM outbox"); err != nil {
		return "", 0, fmt.Errorf("failed to assign queue position: %w", err)
	}

	op := driftsync.OpUpdate
	if exists == 0 {
		op = driftsync.OpInsert
	}
	return op, seq, nil
}

// ============================================================
// driftsync.CheckpointStore
// ============================================================

func (s *Store[T]) Checkpoint(ctx context.Context) (driftsync.Version, error) {
	var v int64
	err := s.db.GetContext(ctx, &v, "SELECT checkpoint FROM sync_state WHERE entity_type = ?", s.typ)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	return driftsync.Version(v), nil
}

func (s *Store[T]) SetCheckpoint(ctx context.Context, v driftsync.Version) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sync_state (entity_type, checkpoint, updated_at) VALUES (?, ?, ?)",
		s.typ, int64(v), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}
