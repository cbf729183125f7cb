package api

import (
	"encoding/json"
	"time"
)

// Record is the JSON envelope for a single change crossing the wire.
// Payload carries the entity snapshot; it is empty for deletes.
type Record struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Op         string          `json:"op"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Version    int64           `json:"version,omitempty"`
	ClientTime time.Time       `json:"clientTime,omitempty"`
}

// ===================================================================================================

// PushResponse acknowledges a single accepted record with its assigned version.
type PushResponse struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// PushBatchRequest carries an ordered batch of records.
type PushBatchRequest struct {
	Records []*Record `json:"records"`
}

// PushResult reports the outcome for one record of a batch.
type PushResult struct {
	ID      string `json:"id"`
	Version int64  `json:"version,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// PushBatchResponse reports how many records were accepted and the
// per-record outcomes, in request order.
type PushBatchResponse struct {
	Accepted int           `json:"accepted"`
	Results  []*PushResult `json:"results"`
}

// ===================================================================================================

// PullParams selects the delta stream: records of the given entity type
// with a version strictly greater than Since.
type PullParams struct {
	Type  string `form:"type" json:"type"`
	Since int64  `form:"since" json:"since"`
	Limit int    `form:"limit" json:"limit"`
}

// PullResponse is one page of the delta stream. Next is the checkpoint
// token to resume from; More signals that another page is available.
type PullResponse struct {
	Records []*Record `json:"records"`
	Next    int64     `json:"next"`
	More    bool      `json:"more"`
}

// ===================================================================================================

// VersionResponse reports the server's current version head.
type VersionResponse struct {
	Version int64 `json:"version"`
}

// StatusResponse is the liveness probe body.
type StatusResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}

// ===================================================================================================

const (
	EventSyncUpdate = "sync.update"
	EventPing       = "ping"
)

// Event is the change notification broadcast to connected hosts after the
// server accepts new records.
type Event struct {
	Type       string    `json:"type"`
	EntityType string    `json:"entityType,omitempty"`
	Version    int64     `json:"version,omitempty"`
	Time       time.Time `json:"time"`
}
