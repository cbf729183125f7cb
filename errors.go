package driftsync

import "errors"

var (
	// ErrSyncInProgress is returned in the result of a pass requested
	// while another pass holds the sync gate.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncPaused is returned in the result of a pass requested while
	// the engine is paused.
	ErrSyncPaused = errors.New("sync paused")

	// ErrServerOffline is returned in the result of a pass whose
	// connectivity probe failed. Hosts match on the exact message.
	ErrServerOffline = errors.New("Server is offline")

	// ErrSyncCancelled is returned in the result of a pass aborted by its
	// context.
	ErrSyncCancelled = errors.New("sync cancelled")
)
