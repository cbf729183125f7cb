package driftsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// upload pushes the pending queue in batches. Item failures are isolated;
// the only error returned is the pass context's cancellation.
func (e *Engine[T]) upload(ctx context.Context, res *Result) error {
	pending, err := e.repo.Pending(ctx)
	if err != nil {
		slog.Error("sync pending", "entity", e.cfg.EntityType, "error", err)
		res.Errors++
		res.ErrorMessage = fmt.Sprintf("fetch pending: %s", err)
		return nil
	}
	if len(pending) == 0 {
		return nil
	}

	total := len(pending)
	completed := 0
	slog.Debug("sync upload", "entity", e.cfg.EntityType, "pending", total)

	for start := 0; start < total; start += e.cfg.BatchSize {
		// cancellation checked at each batch boundary
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := min(start+e.cfg.BatchSize, total)
		batch := pending[start:end]

		// Whole batch in one round trip first. A partial or failed batch
		// falls back to per-record pushes, which the server deduplicates
		// by record id.
		if len(batch) >= 2 {
			n, err := e.remote.PushBatch(ctx, batch)
			switch {
			case err == nil && n == len(batch):
				for _, rec := range batch {
					e.markSynced(ctx, rec, res)
					res.Uploaded++
					completed++
					e.progressUpload(total, completed, rec.EntityID)
				}
				continue
			case err != nil:
				slog.Debug("sync push batch", "entity", e.cfg.EntityType, "size", len(batch), "error", err)
			default:
				slog.Debug("sync push batch partial", "entity", e.cfg.EntityType, "size", len(batch), "accepted", n)
			}
		}

		for _, rec := range batch {
			err := e.pushWithRetry(ctx, rec)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.markFailed(ctx, rec, err)
				res.Errors++
			} else {
				e.markSynced(ctx, rec, res)
				res.Uploaded++
			}
			completed++
			e.progressUpload(total, completed, rec.EntityID)
		}
	}

	return nil
}

// pushWithRetry pushes one record with bounded retry, doubling the
// backoff delay after each failed attempt. The backoff sleep aborts on
// cancellation.
func (e *Engine[T]) pushWithRetry(ctx context.Context, rec Record[T]) error {
	for attempt := 1; ; attempt++ {
		err := e.remote.Push(ctx, rec)
		if err == nil {
			return nil
		}
		if attempt >= e.cfg.MaxAttempts {
			return fmt.Errorf("push failed after %d attempts: %w", attempt, err)
		}

		delay := e.backoffDelay(attempt)
		slog.Debug("sync push retry", "entity", e.cfg.EntityType, "id", rec.EntityID, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffDelay returns the wait after the given failed attempt (1-based).
func (e *Engine[T]) backoffDelay(attempt int) time.Duration {
	return e.cfg.RetryBase << (attempt - 1)
}

func (e *Engine[T]) progressUpload(total, completed int, id string) {
	e.broadcast(&Progress{
		Status:    StatusSyncing,
		Total:     total,
		Completed: completed,
		CurrentID: id,
		Message:   "upload",
	})
}

func (e *Engine[T]) markSynced(ctx context.Context, rec Record[T], res *Result) {
	if err := e.repo.MarkSynced(ctx, rec.EntityID, time.Now().UTC()); err != nil {
		slog.Warn("sync mark synced", "entity", e.cfg.EntityType, "id", rec.EntityID, "error", err)
		res.Errors++
	}
}

func (e *Engine[T]) markFailed(ctx context.Context, rec Record[T], cause error) {
	slog.Warn("sync upload failed", "entity", e.cfg.EntityType, "id", rec.EntityID, "error", cause)
	if err := e.repo.MarkFailed(ctx, rec.EntityID, cause.Error()); err != nil {
		slog.Warn("sync mark failed", "entity", e.cfg.EntityType, "id", rec.EntityID, "error", err)
	}
}
