//go:build !purego

package store

// Default build: cgo SQLite via github.com/mattn/go-sqlite3.
//
//   CGO_ENABLED=1 go build ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver used for the cache.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"

	dsnParams = "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
)
