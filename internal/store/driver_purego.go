//go:build purego

package store

// Pure Go SQLite via modernc.org/sqlite, for builds without a C toolchain.
//
//   CGO_ENABLED=0 go build -tags purego ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver used for the cache.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"

	dsnParams = "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)
