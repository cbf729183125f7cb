// Package store defines the errors shared by the bundled repository
// implementations. The implementations live in the subpackages memstore,
// sqlstore and boltstore; all of them satisfy driftsync.Repository and
// driftsync.CheckpointStore.
package store

import "errors"

var (
	// ErrNotFound is returned when an entity id is not in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)
