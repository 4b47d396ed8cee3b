package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion is the cache layout written by this build. Caches with the
// same major version and an equal or older minor version are readable.
const SchemaVersion = "1.0.0"

const ddl = `
CREATE TABLE IF NOT EXISTS schema_version (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memory (
    id   INTEGER PRIMARY KEY CHECK (id = 1),
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS source_index (
    path            TEXT PRIMARY KEY,
    language        TEXT NOT NULL DEFAULT '',
    content_hash    TEXT NOT NULL,
    parse_error     TEXT NOT NULL DEFAULT '',
    symbols         TEXT NOT NULL DEFAULT '[]',
    artifact_hashes TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS source_graph (
    id   INTEGER PRIMARY KEY CHECK (id = 1),
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
    id           TEXT PRIMARY KEY,
    stage        TEXT NOT NULL,
    target       TEXT NOT NULL DEFAULT '',
    inputs_hash  TEXT NOT NULL,
    output_hash  TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    content      TEXT NOT NULL DEFAULT '',
    missing      TEXT NOT NULL DEFAULT '[]',
    generated_at TEXT NOT NULL DEFAULT ''
);
`

// Init creates the schema tables if they don't exist and stamps a fresh
// database with SchemaVersion.
func Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		"INSERT INTO schema_version (id, version) VALUES (1, ?) ON CONFLICT(id) DO NOTHING",
		SchemaVersion,
	)
	return err
}

// checkVersion verifies that the stored schema can be read by this build.
func checkVersion(ctx context.Context, db *sql.DB) error {
	var stored string
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1").Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return &CorruptionError{Reason: "missing schema version"}
	}
	if err != nil {
		return &CorruptionError{Reason: "read schema version", Err: err}
	}

	have, err := semver.NewVersion(stored)
	if err != nil {
		return &CorruptionError{Reason: fmt.Sprintf("invalid schema version %q", stored), Err: err}
	}
	want := semver.MustParse(SchemaVersion)
	if have.Major() != want.Major() || have.GreaterThan(want) {
		return &CorruptionError{Reason: fmt.Sprintf("schema version %s, want %s", have, want)}
	}
	return nil
}
