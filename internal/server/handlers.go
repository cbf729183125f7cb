package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/driftsync/driftsync/api"
	"github.com/driftsync/driftsync/internal/version"
)

type SyncHandler struct {
	log       *SyncLog
	hub       *Hub
	pageLimit int
}

func NewSyncHandler(log *SyncLog, hub *Hub, pageLimit int) *SyncHandler {
	return &SyncHandler{
		log:       log,
		hub:       hub,
		pageLimit: pageLimit,
	}
}

// Push commits a single record and acks its assigned version.
func (h *SyncHandler) Push(ctx *gin.Context) {
	var rec api.Record
	if err := ctx.ShouldBindJSON(&rec); err != nil {
		abortWithError(ctx, http.StatusBadRequest, api.CodeSyncBadRecord, fmt.Errorf("invalid record: %w", err))
		return
	}

	ver, err := h.log.Append(&rec)
	if err != nil {
		abortWithAPIError(ctx, err)
		return
	}

	h.notify(rec.EntityType, ver)

	ctx.PureJSON(http.StatusOK, api.PushResponse{ID: rec.ID, Version: ver})
}

// PushBatch commits a batch in request order. Item failures are isolated
// into per-record results; the batch itself always acks.
func (h *SyncHandler) PushBatch(ctx *gin.Context) {
	var batch api.PushBatchRequest
	if err := ctx.ShouldBindJSON(&batch); err != nil {
		abortWithError(ctx, http.StatusBadRequest, api.CodeSyncBadRecord, fmt.Errorf("invalid batch: %w", err))
		return
	}
	if len(batch.Records) == 0 {
		abortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, errors.New("empty batch"))
		return
	}

	results := make([]*api.PushResult, 0, len(batch.Records))
	heads := make(map[string]int64)
	accepted := 0

	for _, rec := range batch.Records {
		var id string
		if rec != nil {
			id = rec.ID
		}

		ver, err := h.log.Append(rec)
		if err != nil {
			var apiErr *api.Error
			if !errors.As(err, &apiErr) {
				apiErr = api.NewError(api.CodeInternalError, err.Error())
			}
			results = append(results, &api.PushResult{ID: id, Error: apiErr})
			continue
		}

		results = append(results, &api.PushResult{ID: id, Version: ver})
		if ver > heads[rec.EntityType] {
			heads[rec.EntityType] = ver
		}
		accepted++
	}

	// One event per touched type, not one per record.
	for entityType, head := range heads {
		h.notify(entityType, head)
	}

	ctx.PureJSON(http.StatusOK, api.PushBatchResponse{Accepted: accepted, Results: results})
}

// Pull serves one page of the compacted delta stream.
func (h *SyncHandler) Pull(ctx *gin.Context) {
	var params api.PullParams
	if err := ctx.ShouldBindQuery(&params); err != nil {
		abortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid pull params: %w", err))
		return
	}
	if params.Type == "" {
		abortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, errors.New("entity type missing"))
		return
	}
	if !h.log.TypeAllowed(params.Type) {
		abortWithError(ctx, http.StatusBadRequest, api.CodeSyncUnknownType, fmt.Errorf("unknown entity type %q", params.Type))
		return
	}
	if params.Since < 0 {
		params.Since = 0
	}

	limit := params.Limit
	if limit <= 0 || limit > h.pageLimit {
		limit = h.pageLimit
	}

	records, next, more := h.log.Delta(params.Type, params.Since, limit)
	if records == nil {
		records = []*api.Record{}
	}

	ctx.PureJSON(http.StatusOK, api.PullResponse{Records: records, Next: next, More: more})
}

// Version reports the server's current version head.
func (h *SyncHandler) Version(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, api.VersionResponse{Version: h.log.Head()})
}

func (h *SyncHandler) notify(entityType string, ver int64) {
	h.hub.Broadcast(api.Event{
		Type:       api.EventSyncUpdate,
		EntityType: entityType,
		Version:    ver,
		Time:       time.Now().UTC(),
	})
}

func abortWithAPIError(ctx *gin.Context, err error) {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		abortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	status := http.StatusBadRequest
	if apiErr.Code == api.CodeSyncStaleVersion {
		status = http.StatusConflict
	}

	ctx.Abort()
	ctx.Error(apiErr)
	ctx.PureJSON(status, apiErr)
}

func StatusHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, api.StatusResponse{
		Status:  "ok",
		Version: version.Version,
		Time:    time.Now().UTC(),
	})
}
