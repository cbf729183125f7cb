//go:build cgo && sqlite3_cgo

package db

// Opt-in C driver for builds that want the system SQLite:
//
//	go build -tags sqlite3_cgo
import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)
