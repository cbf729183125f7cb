package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/api"
)

func rec(id, entityID, typ string, op driftsync.Op, payload string) *api.Record {
	r := &api.Record{
		ID:         id,
		EntityID:   entityID,
		EntityType: typ,
		Op:         string(op),
	}
	if payload != "" {
		r.Payload = []byte(payload)
	}
	return r
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Code
}

func TestAppendAssignsMonotonicVersions(t *testing.T) {
	l := NewSyncLog()

	v1, err := l.Append(rec("r1", "n1", "note", driftsync.OpInsert, `{"id":"n1"}`))
	require.NoError(t, err)
	v2, err := l.Append(rec("r2", "d1", "doc", driftsync.OpInsert, `{"id":"d1"}`))
	require.NoError(t, err)
	v3, err := l.Append(rec("r3", "n1", "note", driftsync.OpUpdate, `{"id":"n1"}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)
	assert.Equal(t, int64(3), v3)
	assert.Equal(t, int64(3), l.Head())
}

func TestAppendReplayReturnsOriginalVersion(t *testing.T) {
	l := NewSyncLog()

	v1, err := l.Append(rec("r1", "n1", "note", driftsync.OpInsert, `{"id":"n1"}`))
	require.NoError(t, err)

	// Same record id retried, e.g. after a timed-out but delivered push.
	again, err := l.Append(rec("r1", "n1", "note", driftsync.OpInsert, `{"id":"n1"}`))
	require.NoError(t, err)

	assert.Equal(t, v1, again)
	assert.Equal(t, int64(1), l.Head())
}

func TestAppendValidation(t *testing.T) {
	l := NewSyncLog()

	bad := []*api.Record{
		nil,
		rec("", "n1", "note", driftsync.OpInsert, `{}`),
		rec("r1", "", "note", driftsync.OpInsert, `{}`),
		rec("r1", "n1", "", driftsync.OpInsert, `{}`),
		rec("r1", "n1", "note", "Upsert", `{}`),
		rec("r1", "n1", "note", driftsync.OpInsert, ""),
	}
	for _, r := range bad {
		_, err := l.Append(r)
		require.Error(t, err)
		assert.Equal(t, api.CodeSyncBadRecord, errCode(t, err))
	}
	assert.Equal(t, int64(0), l.Head())

	// A delete travels without a payload.
	_, err := l.Append(rec("r2", "n1", "note", driftsync.OpDelete, ""))
	assert.NoError(t, err)
}

func TestAppendStaleVersion(t *testing.T) {
	l := NewSyncLog()

	_, err := l.Append(rec("r1", "n1", "note", driftsync.OpInsert, `{"v":1}`))
	require.NoError(t, err)
	_, err = l.Append(rec("r2", "n1", "note", driftsync.OpUpdate, `{"v":2}`))
	require.NoError(t, err)

	// Built on v1 while the entity is at v2.
	stale := rec("r3", "n1", "note", driftsync.OpUpdate, `{"v":3}`)
	stale.Version = 1
	_, err = l.Append(stale)
	require.Error(t, err)
	assert.Equal(t, api.CodeSyncStaleVersion, errCode(t, err))

	// Built on the current head is fine.
	fresh := rec("r4", "n1", "note", driftsync.OpUpdate, `{"v":3}`)
	fresh.Version = 2
	v, err := l.Append(fresh)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestAppendUnknownType(t *testing.T) {
	l := NewSyncLog("note")

	_, err := l.Append(rec("r1", "d1", "doc", driftsync.OpInsert, `{}`))
	require.Error(t, err)
	assert.Equal(t, api.CodeSyncUnknownType, errCode(t, err))

	_, err = l.Append(rec("r2", "n1", "note", driftsync.OpInsert, `{}`))
	assert.NoError(t, err)

	assert.True(t, l.TypeAllowed("note"))
	assert.False(t, l.TypeAllowed("doc"))
}

func seedLog(t *testing.T) *SyncLog {
	t.Helper()
	l := NewSyncLog()

	seeds := []*api.Record{
		rec("r1", "a", "note", driftsync.OpInsert, `{"id":"a","rev":1}`),
		rec("r2", "b", "note", driftsync.OpInsert, `{"id":"b","rev":1}`),
		rec("r3", "a", "note", driftsync.OpUpdate, `{"id":"a","rev":2}`),
		rec("r4", "x", "doc", driftsync.OpInsert, `{"id":"x"}`),
		rec("r5", "b", "note", driftsync.OpDelete, ""),
	}
	for _, r := range seeds {
		_, err := l.Append(r)
		require.NoError(t, err)
	}
	return l
}

func TestDeltaCompactsToLatest(t *testing.T) {
	l := seedLog(t)

	page, next, more := l.Delta("note", 0, 100)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].EntityID)
	assert.Equal(t, int64(3), page[0].Version)
	assert.Equal(t, "b", page[1].EntityID)
	assert.Equal(t, int64(5), page[1].Version)
	assert.Equal(t, string(driftsync.OpDelete), page[1].Op)
	assert.Equal(t, int64(5), next)
	assert.False(t, more)
}

func TestDeltaPages(t *testing.T) {
	l := seedLog(t)

	page, next, more := l.Delta("note", 0, 1)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].EntityID)
	assert.Equal(t, int64(3), next)
	assert.True(t, more)

	page, next, more = l.Delta("note", next, 1)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].EntityID)
	assert.Equal(t, int64(5), next)
	assert.False(t, more)
}

func TestDeltaAdvancesPastForeignTail(t *testing.T) {
	l := seedLog(t)

	// The last doc record is v4, but the page was not cut short, so the
	// cursor still lands on the global head.
	page, next, more := l.Delta("doc", 0, 100)
	require.Len(t, page, 1)
	assert.Equal(t, "x", page[0].EntityID)
	assert.Equal(t, int64(5), next)
	assert.False(t, more)
}

func TestDeltaAtOrPastHead(t *testing.T) {
	l := seedLog(t)

	page, next, more := l.Delta("note", 5, 10)
	assert.Empty(t, page)
	assert.Equal(t, int64(5), next)
	assert.False(t, more)

	// A checkpoint ahead of the head never regresses.
	page, next, more = l.Delta("note", 9, 10)
	assert.Empty(t, page)
	assert.Equal(t, int64(9), next)
	assert.False(t, more)
}
