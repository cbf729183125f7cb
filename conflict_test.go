package driftsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bareNote carries no timestamps, so LastWriteWins cannot compare it.
type bareNote struct {
	ID    string
	Body  string
	Dirty bool
}

func (n bareNote) SyncID() string { return n.ID }
func (n bareNote) Pending() bool  { return n.Dirty }

func conflictOf(local, remote note) *Conflict[note] {
	return &Conflict[note]{
		EntityID:   local.ID,
		EntityType: "note",
		Local:      local,
		Remote:     remote,
	}
}

func TestResolver_Strategies(t *testing.T) {
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	tests := []struct {
		name     string
		strategy Strategy
		local    note
		remote   note
		wantBody string
	}{
		{
			name:     "server wins",
			strategy: ServerWins,
			local:    note{ID: "n1", Body: "local"},
			remote:   note{ID: "n1", Body: "remote"},
			wantBody: "remote",
		},
		{
			name:     "local wins",
			strategy: LocalWins,
			local:    note{ID: "n1", Body: "local"},
			remote:   note{ID: "n1", Body: "remote"},
			wantBody: "local",
		},
		{
			name:     "last write wins newer local",
			strategy: LastWriteWins,
			local:    note{ID: "n1", Body: "local", Modified: newer},
			remote:   note{ID: "n1", Body: "remote", Modified: older},
			wantBody: "local",
		},
		{
			name:     "last write wins newer remote",
			strategy: LastWriteWins,
			local:    note{ID: "n1", Body: "local", Modified: older},
			remote:   note{ID: "n1", Body: "remote", Modified: newer},
			wantBody: "remote",
		},
		{
			name:     "last write wins tie goes remote",
			strategy: LastWriteWins,
			local:    note{ID: "n1", Body: "local", Modified: newer},
			remote:   note{ID: "n1", Body: "remote", Modified: newer},
			wantBody: "remote",
		},
		{
			name:     "last write wins falls back to created time",
			strategy: LastWriteWins,
			local:    note{ID: "n1", Body: "local", Created: newer},
			remote:   note{ID: "n1", Body: "remote", Created: older},
			wantBody: "local",
		},
		{
			name:     "unknown strategy defaults to server wins",
			strategy: Strategy("typo"),
			local:    note{ID: "n1", Body: "local"},
			remote:   note{ID: "n1", Body: "remote"},
			wantBody: "remote",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver[note](tt.strategy, nil)
			c := conflictOf(tt.local, tt.remote)

			winner, ok := r.Resolve(c)

			require.True(t, ok)
			assert.Equal(t, tt.wantBody, winner.Body)
			assert.True(t, c.IsResolved)
			assert.Equal(t, tt.wantBody, c.Resolved.Body)
		})
	}
}

func TestResolver_LastWriteWinsWithoutTimestamps(t *testing.T) {
	// Entities that expose no write times resolve to the remote side.
	r := NewResolver[bareNote](LastWriteWins, nil)
	c := &Conflict[bareNote]{
		EntityID: "n1",
		Local:    bareNote{ID: "n1", Body: "local"},
		Remote:   bareNote{ID: "n1", Body: "remote"},
	}

	winner, ok := r.Resolve(c)

	require.True(t, ok)
	assert.Equal(t, "remote", winner.Body)
}

func TestResolver_ManualResolved(t *testing.T) {
	handler := func(c *Conflict[note]) {
		c.Resolved = note{ID: c.EntityID, Body: "merged"}
		c.IsResolved = true
	}
	r := NewResolver(Manual, handler)
	c := conflictOf(note{ID: "n1", Body: "local"}, note{ID: "n1", Body: "remote"})

	winner, ok := r.Resolve(c)

	require.True(t, ok)
	assert.Equal(t, "merged", winner.Body)
}

func TestResolver_ManualDeclined(t *testing.T) {
	handler := func(c *Conflict[note]) {}
	r := NewResolver(Manual, handler)
	c := conflictOf(note{ID: "n1", Body: "local"}, note{ID: "n1", Body: "remote"})

	_, ok := r.Resolve(c)

	assert.False(t, ok)
	assert.False(t, c.IsResolved)
}

func TestResolver_ManualWithoutHandlerDeclines(t *testing.T) {
	r := NewResolver[note](Manual, nil)
	c := conflictOf(note{ID: "n1", Body: "local"}, note{ID: "n1", Body: "remote"})

	_, ok := r.Resolve(c)

	assert.False(t, ok)
}

func TestNewRecord(t *testing.T) {
	before := time.Now().UTC()
	rec := NewRecord(OpInsert, note{ID: "n1", Body: "x", Dirty: true})

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "n1", rec.EntityID)
	assert.Equal(t, OpInsert, rec.Op)
	assert.Equal(t, "x", rec.Entity.Body)
	assert.Zero(t, rec.Version)
	assert.False(t, rec.LocalTime.Before(before))

	other := NewRecord(OpInsert, note{ID: "n1"})
	assert.NotEqual(t, rec.ID, other.ID)
}
