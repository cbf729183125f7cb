package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/api"
)

const (
	dedupeSize = 8192
	dedupeTTL  = 10 * time.Minute
)

type entityKey struct {
	typ string
	id  string
}

// SyncLog is the ordered record log behind the sync endpoints. It owns
// the version authority: every accepted record gets the next token from a
// single monotonic counter shared by all entity types, so a pull
// checkpoint is one number regardless of how many types a host syncs.
type SyncLog struct {
	mu    sync.RWMutex
	recs  []*api.Record // recs[i].Version == int64(i)+1
	heads map[entityKey]int64
	seen  *expirable.LRU[string, int64] // record id -> assigned version
	types map[string]struct{}           // accepted entity types; empty means all
}

func NewSyncLog(entityTypes ...string) *SyncLog {
	types := make(map[string]struct{}, len(entityTypes))
	for _, t := range entityTypes {
		types[t] = struct{}{}
	}
	return &SyncLog{
		heads: make(map[entityKey]int64),
		seen:  expirable.NewLRU[string, int64](dedupeSize, nil, dedupeTTL),
		types: types,
	}
}

// Append validates and commits one record, returning its assigned
// version. Replaying an already-committed record id acks the original
// version instead of committing twice, so retried pushes stay idempotent.
func (l *SyncLog) Append(rec *api.Record) (int64, error) {
	if err := validateRecord(rec); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.typeAllowed(rec.EntityType) {
		return 0, api.NewError(api.CodeSyncUnknownType, fmt.Sprintf("unknown entity type %q", rec.EntityType))
	}

	if v, ok := l.seen.Get(rec.ID); ok {
		return v, nil
	}

	key := entityKey{typ: rec.EntityType, id: rec.EntityID}
	if rec.Version > 0 && l.heads[key] > rec.Version {
		return 0, api.NewError(api.CodeSyncStaleVersion,
			fmt.Sprintf("entity %s is at version %d", rec.EntityID, l.heads[key]))
	}

	committed := *rec
	committed.Version = int64(len(l.recs)) + 1
	l.recs = append(l.recs, &committed)
	l.heads[key] = committed.Version
	l.seen.Add(committed.ID, committed.Version)

	return committed.Version, nil
}

// Delta returns one page of the compacted change stream for an entity
// type: the latest committed record per entity with a version in
// (since, next], ordered by version. When the page is not cut short by
// limit, next lands on the global head so an empty tail is never
// rescanned.
func (l *SyncLog) Delta(entityType string, since int64, limit int) ([]*api.Record, int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	head := int64(len(l.recs))
	if since >= head {
		return nil, since, false
	}

	window := l.recs[since:]

	latest := make(map[string]*api.Record)
	for _, rec := range window {
		if rec.EntityType == entityType {
			latest[rec.EntityID] = rec
		}
	}

	var page []*api.Record
	for _, rec := range window {
		if latest[rec.EntityID] != rec {
			continue
		}
		if len(page) == limit {
			return page, page[len(page)-1].Version, true
		}
		page = append(page, rec)
	}

	return page, head, false
}

// Head returns the last assigned version.
func (l *SyncLog) Head() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return int64(len(l.recs))
}

// TypeAllowed reports whether the registry accepts the given entity type.
func (l *SyncLog) TypeAllowed(entityType string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.typeAllowed(entityType)
}

func (l *SyncLog) typeAllowed(entityType string) bool {
	if len(l.types) == 0 {
		return true
	}
	_, ok := l.types[entityType]
	return ok
}

func validateRecord(rec *api.Record) error {
	switch {
	case rec == nil:
		return api.NewError(api.CodeSyncBadRecord, "record missing")
	case rec.ID == "":
		return api.NewError(api.CodeSyncBadRecord, "record id missing")
	case rec.EntityID == "":
		return api.NewError(api.CodeSyncBadRecord, "entity id missing")
	case rec.EntityType == "":
		return api.NewError(api.CodeSyncBadRecord, "entity type missing")
	}

	switch driftsync.Op(rec.Op) {
	case driftsync.OpInsert, driftsync.OpUpdate, driftsync.OpDelete:
	default:
		return api.NewError(api.CodeSyncBadRecord, fmt.Sprintf("unknown op %q", rec.Op))
	}

	if driftsync.Op(rec.Op) != driftsync.OpDelete && len(rec.Payload) == 0 {
		return api.NewError(api.CodeSyncBadRecord, "payload missing")
	}

	return nil
}
