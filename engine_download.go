package driftsync

import (
	"context"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
)

// download pulls the delta since the last checkpoint and applies it.
// Returns the next checkpoint token and whether the pull succeeded; a
// failed pull abandons the phase without failing the pass. The only error
// returned is the pass context's cancellation.
func (e *Engine[T]) download(ctx context.Context, res *Result) (Version, bool, error) {
	since, err := e.checkpoints.Checkpoint(ctx)
	if err != nil {
		// Re-pulling from zero over-fetches but applies cleanly.
		slog.Warn("sync checkpoint read", "entity", e.cfg.EntityType, "error", err)
		res.Errors++
		since = 0
	}

	records, next, err := e.remote.Pull(ctx, since)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		slog.Error("sync pull", "entity", e.cfg.EntityType, "since", since, "error", err)
		res.Errors++
		res.ErrorMessage = fmt.Sprintf("pull failed: %s", err)
		return 0, false, nil
	}
	if len(records) == 0 {
		return next, true, nil
	}

	index, err := e.indexLocal(ctx)
	if err != nil {
		slog.Error("sync index local", "entity", e.cfg.EntityType, "error", err)
		res.Errors++
		res.ErrorMessage = fmt.Sprintf("index local entities: %s", err)
		return 0, false, nil
	}

	total := len(records)
	slog.Debug("sync download", "entity", e.cfg.EntityType, "records", total, "since", since, "next", next)

	// One conflict per entity per pass: replayed ids in the delta are
	// applied once.
	seen := mapset.NewSet[string]()

	for i, rec := range records {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		if rec.EntityID == "" || seen.Contains(rec.EntityID) {
			continue
		}
		seen.Add(rec.EntityID)

		e.apply(ctx, rec, index, res)

		e.broadcast(&Progress{
			Status:    StatusSyncing,
			Total:     total,
			Completed: i + 1,
			CurrentID: rec.EntityID,
			Message:   "download",
		})
	}

	return next, true, nil
}

// apply reconciles one pulled record against the local copy.
func (e *Engine[T]) apply(ctx context.Context, rec Record[T], index map[string]T, res *Result) {
	local, exists := index[rec.EntityID]

	switch {
	case !exists:
		if rec.Op == OpDelete {
			return
		}
		if err := e.repo.Add(ctx, rec.Entity); err != nil {
			slog.Warn("sync apply add", "entity", e.cfg.EntityType, "id", rec.EntityID, "error", err)
			res.Errors++
			return
		}
		e.markSynced(ctx, rec, res)
		res.Downloaded++

	case !local.Pending():
		if rec.Op == OpDelete {
			if err := e.repo.Delete(ctx, rec.EntityID); err != nil {
				slog.Warn("sync apply delete", "entity", e.cfg.EntityType, "id", rec.EntityID, "error", err)
				res.Errors++
				return
			}
			res.Downloaded++
			return
		}
		if err := e.repo.Update(ctx, rec.Entity); err != nil {
			slog.Warn("sync apply update", "entity", e.cfg.EntityType, "id", rec.EntityID, "error", err)
			res.Errors++
			return
		}
		e.markSynced(ctx, rec, res)
		res.Downloaded++

	default:
		// Local copy has unsynced edits.
		if rec.Op == OpDelete {
			// Pending local edit outlives a remote delete; the next upload
			// restores the entity on the server.
			slog.Debug("sync skip remote delete", "entity", e.cfg.EntityType, "id", rec.EntityID, "reason", "local pending")
			return
		}
		e.resolveConflict(ctx, rec, local, res)
	}
}

func (e *Engine[T]) resolveConflict(ctx context.Context, rec Record[T], local T, res *Result) {
	res.Conflicts++

	conflict := &Conflict[T]{
		EntityID:   rec.EntityID,
		EntityType: e.cfg.EntityType,
		Local:      local,
		Remote:     rec.Entity,
	}

	winner, ok := e.resolver.Resolve(conflict)
	if !ok {
		// Deferred; stays pending and is retried next pass.
		slog.Info("sync conflict deferred", "entity", e.cfg.EntityType, "id", rec.EntityID, "strategy", e.cfg.Strategy)
		return
	}

	if err := e.repo.Update(ctx, winner); err != nil {
		slog.Warn("sync apply resolved", "entity", e.cfg.EntityType, "id", rec.EntityID, "error", err)
		res.Errors++
		return
	}
	e.markSynced(ctx, rec, res)
	res.ConflictsResolved++

	slog.Debug("sync conflict resolved", "entity", e.cfg.EntityType, "id", rec.EntityID, "strategy", e.cfg.Strategy)
}

// indexLocal snapshots the repository once per pass for id lookups.
func (e *Engine[T]) indexLocal(ctx context.Context) (map[string]T, error) {
	entities, err := e.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]T, len(entities))
	for _, entity := range entities {
		index[entity.SyncID()] = entity
	}
	return index, nil
}
