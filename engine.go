// Package driftsync implements offline-first bidirectional synchronization
// between a durable local repository and a remote authority. Hosts queue
// changes locally while offline; a sync pass uploads pending records with
// bounded retry, downloads remote deltas since the last checkpoint and
// reconciles record-level conflicts through a pluggable strategy.
package driftsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultBatchSize   = 50
	DefaultMaxAttempts = 3
	DefaultRetryBase   = 500 * time.Millisecond
)

// Config fixes an engine's behavior at construction time.
type Config struct {
	// Direction selects which phases a pass runs. Default Bidirectional.
	Direction Direction

	// Strategy resolves conflicting edits. Default ServerWins.
	Strategy Strategy

	// BatchSize partitions the pending queue for upload. Default 50.
	BatchSize int

	// MaxAttempts bounds pushes per record per pass, first try included.
	// Default 3.
	MaxAttempts int

	// RetryBase is the first backoff delay; each retry doubles it.
	// Default 500ms.
	RetryBase time.Duration

	// EntityType labels this engine's records in logs, conflicts and on
	// the wire.
	EntityType string
}

func (c *Config) applyDefaults() {
	if c.Direction == "" {
		c.Direction = Bidirectional
	}
	if c.Strategy == "" {
		c.Strategy = ServerWins
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.EntityType == "" {
		c.EntityType = "entity"
	}
}

// Engine drives sync passes for one entity type. At most one pass runs at
// a time; callers hitting a busy engine get an immediate failed result
// instead of queueing.
type Engine[T Syncable] struct {
	cfg         Config
	repo        Repository[T]
	remote      RemoteClient[T]
	checkpoints CheckpointStore
	resolver    *Resolver[T]
	handler     ConflictHandler[T]

	gate   *semaphore.Weighted
	paused atomic.Bool

	status   Status
	statusMu sync.RWMutex

	subs   []chan *Progress
	subsMu sync.RWMutex
}

// Option configures optional engine behavior.
type Option[T Syncable] func(*Engine[T])

// WithConflictHandler registers the synchronous handler invoked for each
// conflict under the Manual strategy.
func WithConflictHandler[T Syncable](h ConflictHandler[T]) Option[T] {
	return func(e *Engine[T]) {
		e.handler = h
	}
}

// New builds an engine from its collaborators. Zero config fields take
// defaults.
func New[T Syncable](cfg Config, repo Repository[T], remote RemoteClient[T], checkpoints CheckpointStore, opts ...Option[T]) (*Engine[T], error) {
	if repo == nil {
		return nil, errors.New("driftsync: repository is nil")
	}
	if remote == nil {
		return nil, errors.New("driftsync: remote client is nil")
	}
	if checkpoints == nil {
		return nil, errors.New("driftsync: checkpoint store is nil")
	}

	cfg.applyDefaults()

	e := &Engine[T]{
		cfg:         cfg,
		repo:        repo,
		remote:      remote,
		checkpoints: checkpoints,
		gate:        semaphore.NewWeighted(1),
		status:      StatusIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = NewResolver(cfg.Strategy, e.handler)

	return e, nil
}

// Sync runs one pass: connectivity probe, upload, download, finalize.
// It returns when the pass is done; progress streams through Subscribe.
func (e *Engine[T]) Sync(ctx context.Context) *Result {
	return e.run(ctx, false)
}

// ForceSync resets the pull checkpoint to zero before syncing, so the
// pass downloads the full remote delta regardless of prior state.
func (e *Engine[T]) ForceSync(ctx context.Context) *Result {
	return e.run(ctx, true)
}

// Pause stops new passes from starting. An in-flight pass is not
// interrupted.
func (e *Engine[T]) Pause() {
	e.paused.Store(true)
	if e.gate.TryAcquire(1) {
		e.setStatus(StatusPaused)
		e.gate.Release(1)
	}
	slog.Info("sync paused", "entity", e.cfg.EntityType)
}

// Resume lifts a pause.
func (e *Engine[T]) Resume() {
	e.paused.Store(false)
	if e.Status() == StatusPaused {
		e.setStatus(StatusIdle)
	}
	slog.Info("sync resumed", "entity", e.cfg.EntityType)
}

func (e *Engine[T]) run(ctx context.Context, force bool) *Result {
	started := time.Now().UTC()

	if e.paused.Load() {
		return newResult(started).fail(StatusPaused, ErrSyncPaused.Error())
	}

	if !e.gate.TryAcquire(1) {
		return newResult(started).fail(StatusFailed, ErrSyncInProgress.Error())
	}
	defer e.gate.Release(1)

	if force {
		if err := e.checkpoints.SetCheckpoint(ctx, 0); err != nil {
			slog.Error("sync checkpoint reset", "entity", e.cfg.EntityType, "error", err)
			return newResult(started).fail(StatusFailed, fmt.Sprintf("reset checkpoint: %s", err))
		}
	}

	e.setStatus(StatusSyncing)
	res := e.pass(ctx, started)
	e.setStatus(res.Status)

	e.broadcast(&Progress{
		Status:    res.Status,
		Total:     res.Uploaded + res.Downloaded,
		Completed: res.Uploaded + res.Downloaded,
		Message:   "sync finished",
	})

	slog.Info("sync pass",
		"entity", e.cfg.EntityType,
		"status", res.Status,
		"uploaded", res.Uploaded,
		"downloaded", res.Downloaded,
		"conflicts", res.Conflicts,
		"resolved", res.ConflictsResolved,
		"errors", res.Errors,
		"took", res.Duration,
	)
	return res
}

// pass runs the phases. Any panic is converted into a failed result so
// the gate and status are always restored.
func (e *Engine[T]) pass(ctx context.Context, started time.Time) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync pass panic", "entity", e.cfg.EntityType, "panic", r)
			if res == nil {
				res = newResult(started)
			}
			res.fail(StatusFailed, fmt.Sprintf("%v", r))
		}
	}()

	res = newResult(started)

	e.broadcast(&Progress{Status: StatusSyncing, Message: "sync started"})

	online, err := e.remote.IsOnline(ctx)
	if err != nil || !online {
		if err != nil {
			slog.Warn("sync probe", "entity", e.cfg.EntityType, "error", err)
		}
		return res.fail(StatusOffline, ErrServerOffline.Error())
	}

	if ctx.Err() != nil {
		return res.fail(StatusCancelled, ErrSyncCancelled.Error())
	}

	if e.cfg.Direction.uploads() {
		if err := e.upload(ctx, res); err != nil {
			return res.fail(StatusCancelled, ErrSyncCancelled.Error())
		}
	}

	next := Version(0)
	pulled := false
	if e.cfg.Direction.downloads() {
		next, pulled, err = e.download(ctx, res)
		if err != nil {
			return res.fail(StatusCancelled, ErrSyncCancelled.Error())
		}
	}

	// Finalize: advance the checkpoint only for a non-cancelled pass with
	// a successful pull.
	if pulled {
		if err := e.checkpoints.SetCheckpoint(ctx, next); err != nil {
			slog.Error("sync checkpoint", "entity", e.cfg.EntityType, "version", next, "error", err)
			res.Errors++
		}
	}

	if e.cfg.Direction == Download && !pulled {
		return res.fail(StatusFailed, res.ErrorMessage)
	}

	return res.complete()
}
