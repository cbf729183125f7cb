package driftsync

// Op identifies the kind of change a record carries.
type Op string

const (
	OpInsert Op = "Insert"
	OpUpdate Op = "Update"
	OpDelete Op = "Delete"
)
