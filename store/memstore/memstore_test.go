package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/store"
)

type task struct {
	ID    string
	Title string
	Dirty bool
}

func (t task) SyncID() string { return t.ID }
func (t task) Pending() bool  { return t.Dirty }

func (t task) WithPending(pending bool) task {
	t.Dirty = pending
	return t
}

var (
	_ driftsync.Repository[task] = (*Store[task])(nil)
	_ driftsync.CheckpointStore  = (*Store[task])(nil)
)

func pendingIDs(t *testing.T, s *Store[task]) []string {
	t.Helper()
	recs, err := s.Pending(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.EntityID)
	}
	return ids
}

func TestSaveQueuesInsert(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	require.NoError(t, s.Save(ctx, task{ID: "t1", Title: "write report"}))

	recs, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, driftsync.OpInsert, recs[0].Op)
	assert.Equal(t, "t1", recs[0].EntityID)
	assert.True(t, recs[0].Entity.Dirty)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Dirty)
}

func TestSaveCoalescesRepeatedEdits(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	require.NoError(t, s.Save(ctx, task{ID: "t1", Title: "draft"}))
	require.NoError(t, s.Save(ctx, task{ID: "t1", Title: "final"}))

	recs, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	// Never uploaded, so it is still an insert carrying the latest state.
	assert.Equal(t, driftsync.OpInsert, recs[0].Op)
	assert.Equal(t, "final", recs[0].Entity.Title)
}

func TestSaveAfterSyncQueuesUpdate(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	require.NoError(t, s.Save(ctx, task{ID: "t1", Title: "v1"}))
	require.NoError(t, s.MarkSynced(ctx, "t1", time.Now()))
	require.NoError(t, s.Save(ctx, task{ID: "t1", Title: "v2"}))

	recs, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, driftsync.OpUpdate, recs[0].Op)
	assert.Equal(t, "v2", recs[0].Entity.Title)
}

func TestRemoveUnsyncedInsertDropsQueue(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	require.NoError(t, s.Save(ctx, task{ID: "t1", Title: "ephemeral"}))
	require.NoError(t, s.Remove(ctx, "t1"))

	// The server never saw the entity, so nothing travels at all.
	assert.Empty(t, pendingIDs(t, s))
	_, err := s.Get(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoveSyncedQueuesTombstone(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	require.NoError(t, s.Save(ctx, task{ID: "t1", Title: "shipped"}))
	require.NoError(t, s.MarkSynced(ctx, "t1", time.Now()))
	require.NoError(t, s.Remove(ctx, "t1"))

	recs, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, driftsync.OpDelete, recs[0].Op)
	assert.Equal(t, "t1", recs[0].EntityID)

	_, err = s.Get(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoveMissing(t *testing.T) {
	s := New[task]()
	assert.ErrorIs(t, s.Remove(context.Background(), "ghost"), store.ErrNotFound)
}

func TestPendingKeepsQueueOrder(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	require.NoError(t, s.Save(ctx, task{ID: "a"}))
	require.NoError(t, s.Save(ctx, task{ID: "b"}))
	require.NoError(t, s.Save(ctx, task{ID: "c"}))
	assert.Equal(t, []string{"a", "b", "c"}, pendingIDs(t, s))

	// Re-editing an entity keeps its place in the queue.
	require.NoError(t, s.Save(ctx, task{ID: "a", Title: "edited"}))
	assert.Equal(t, []string{"a", "b", "c"}, pendingIDs(t, s))
}

func TestMarkSyncedClearsPending(t *testing.T) {
	ctx := context.Background()
	s := New[task]()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, task{ID: "t1", Title: "done"}))
	require.NoError(t, s.MarkSynced(ctx, "t1", at))

	assert.Empty(t, pendingIDs(t, s))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, got.Dirty)

	synced, ok := s.LastSyncedAt("t1")
	require.True(t, ok)
	assert.Equal(t, at, synced)
}

func TestMarkFailedKeepsRecordQueued(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	require.NoError(t, s.Save(ctx, task{ID: "t1"}))
	require.NoError(t, s.MarkFailed(ctx, "t1", "push failed after 3 attempts"))

	assert.Equal(t, []string{"t1"}, pendingIDs(t, s))
	assert.Equal(t, "push failed after 3 attempts", s.Failures()["t1"])

	// A later success clears the failure.
	require.NoError(t, s.MarkSynced(ctx, "t1", time.Now()))
	assert.Empty(t, s.Failures())
}

func TestRemoteApplyDoesNotQueue(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	require.NoError(t, s.Add(ctx, task{ID: "r1", Title: "from server"}))
	require.NoError(t, s.Update(ctx, task{ID: "r1", Title: "from server v2"}))
	assert.Empty(t, pendingIDs(t, s))
	assert.Equal(t, 1, s.Count(ctx))

	require.NoError(t, s.Delete(ctx, "r1"))
	assert.Zero(t, s.Count(ctx))
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New[task]()

	v, err := s.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, driftsync.Version(0), v)

	require.NoError(t, s.SetCheckpoint(ctx, 42))
	v, err = s.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, driftsync.Version(42), v)
}
