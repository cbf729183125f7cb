package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/remote/httpremote"
	"github.com/driftsync/driftsync/store"
	"github.com/driftsync/driftsync/store/memstore"
)

type doc struct {
	ID    string `json:"id"`
	Body  string `json:"body"`
	Dirty bool   `json:"-"`
}

func (d doc) SyncID() string { return d.ID }
func (d doc) Pending() bool  { return d.Dirty }

func (d doc) WithPending(pending bool) doc {
	d.Dirty = pending
	return d
}

type host struct {
	store  *memstore.Store[doc]
	engine *driftsync.Engine[doc]
}

func newHost(t *testing.T, baseURL string, cfg driftsync.Config) *host {
	t.Helper()
	st := memstore.New[doc]()
	rc, err := httpremote.New[doc](baseURL, "doc")
	require.NoError(t, err)
	eng, err := driftsync.New(cfg, st, rc, st)
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return &host{store: st, engine: eng}
}

// TestTwoHostsConverge runs two engines against a live server: alice
// syncs both ways, bob only downloads and resolves server-wins.
func TestTwoHostsConverge(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	alice := newHost(t, env.srv.URL, driftsync.Config{EntityType: "doc"})
	bob := newHost(t, env.srv.URL, driftsync.Config{
		EntityType: "doc",
		Direction:  driftsync.Download,
		Strategy:   driftsync.ServerWins,
	})

	// Alice drafts a document and syncs it up.
	require.NoError(t, alice.store.Save(ctx, doc{ID: "d1", Body: "first draft"}))
	res := alice.engine.Sync(ctx)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, res.Uploaded)

	// Bob picks it up.
	res = bob.engine.Sync(ctx)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, res.Downloaded)

	got, err := bob.store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "first draft", got.Body)
	assert.False(t, got.Dirty)

	// Both edit, but only alice ships hers.
	require.NoError(t, bob.store.Save(ctx, doc{ID: "d1", Body: "bob's rewording"}))
	require.NoError(t, alice.store.Save(ctx, doc{ID: "d1", Body: "second draft"}))
	res = alice.engine.Sync(ctx)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, res.Uploaded)

	// Bob's next pass finds the newer server copy clashing with his
	// local edit; server-wins overwrites it and drains his queue.
	res = bob.engine.Sync(ctx)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.ConflictsResolved)

	got, err = bob.store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "second draft", got.Body)
	assert.False(t, got.Dirty)

	pending, err := bob.store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Alice deletes; the tombstone reaches bob.
	require.NoError(t, alice.store.Remove(ctx, "d1"))
	res = alice.engine.Sync(ctx)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, res.Uploaded)

	res = bob.engine.Sync(ctx)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, res.Downloaded)

	_, err = bob.store.Get(ctx, "d1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Everyone ends on the same version token.
	head := env.log.Head()
	assert.Equal(t, int64(3), head)

	cp, err := alice.store.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, driftsync.Version(head), cp)

	cp, err = bob.store.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, driftsync.Version(head), cp)
}
