package api

import "fmt"

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	// Sync errors
	CodeSyncBadRecord    = "E_SYNC_BAD_RECORD"    // the record envelope is malformed or missing required fields.
	CodeSyncUnknownType  = "E_SYNC_UNKNOWN_TYPE"  // the entity type is not registered with the server.
	CodeSyncStaleVersion = "E_SYNC_STALE_VERSION" // the record was produced against an older version of the entity.
)

// Error is the JSON error body returned by the sync server.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error: code=%s, message=%s", e.Code, e.Message)
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}
