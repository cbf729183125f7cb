// Package api defines the wire contract between sync hosts and the sync
// server: endpoint paths, request/response shapes and the change-event
// message pushed over the websocket.
package api

const (
	PathStatus    = "/api/v1/status"
	PathPush      = "/api/v1/sync/push"
	PathPushBatch = "/api/v1/sync/push/batch"
	PathPull      = "/api/v1/sync/pull"
	PathVersion   = "/api/v1/sync/version"
	PathEvents    = "/api/v1/events"
)

const (
	HeaderUserAgent     = "User-Agent"
	HeaderClientVersion = "X-Drift-Version"
	HeaderDeviceId      = "X-Drift-Device-Id"
)
