// Package store persists the cache between runs: run metadata, memory, the
// source index and the generated artifacts, all in one SQLite file that is
// replaced atomically on save.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"plainsight/internal/index"
	"plainsight/internal/memory"

	"github.com/hashicorp/go-hclog"
)

// ErrCacheCorruption is matched by every error that means the persisted
// state is unreadable or schema-mismatched.
var ErrCacheCorruption = errors.New("cache corruption")

// CorruptionError describes why a cache could not be read.
type CorruptionError struct {
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache corruption: %s: %v", e.Reason, e.Err)
	}
	return "cache corruption: " + e.Reason
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func (e *CorruptionError) Is(target error) bool { return target == ErrCacheCorruption }

// Meta keys.
const (
	metaProjectName = "project_name"
	metaDocsRoot    = "docs_root"
	metaLastRun     = "last_run"
	metaFingerprint = "settings_fingerprint"
	metaRunID       = "run_id"
)

// Meta is the run metadata.
type Meta struct {
	ProjectName         string
	DocsRoot            string
	LastRun             time.Time
	SettingsFingerprint string
	RunID               string
}

// CacheEntry records the last generation of one artifact.
type CacheEntry struct {
	ID          string
	Stage       string
	Target      string
	InputsHash  string
	OutputHash  string
	Status      string
	Content     string
	Missing     []string
	GeneratedAt time.Time
}

// State is everything persisted between runs.
type State struct {
	Meta      Meta
	Memory    *memory.Memory
	Index     *index.ProjectIndex
	Artifacts map[string]*CacheEntry

	// Corruption is set when the cache on disk was unreadable and this
	// state is the empty cold-run state that replaced it.
	Corruption error
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Memory:    &memory.Memory{},
		Index:     &index.ProjectIndex{Files: make(map[string]*index.FileIndex)},
		Artifacts: make(map[string]*CacheEntry),
	}
}

// Empty reports whether no run has been recorded.
func (st *State) Empty() bool {
	return st.Meta.LastRun.IsZero() && len(st.Index.Files) == 0 && len(st.Artifacts) == 0
}

// CacheStore is the SQLite-backed cache.
type CacheStore struct {
	db     *sql.DB
	path   string
	logger hclog.Logger
}

// Open creates or opens the cache at path and initialises the schema.
// An existing file that cannot be initialised yields a *CorruptionError.
func Open(ctx context.Context, path string, logger hclog.Logger) (*CacheStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	_, statErr := os.Stat(path)
	existed := statErr == nil

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := sql.Open(DriverName, path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// One connection keeps every statement of a save on the same
	// transaction-capable handle.
	db.SetMaxOpenConns(1)
	if err := Init(ctx, db); err != nil {
		db.Close()
		if existed {
			return nil, &CorruptionError{Reason: "init schema", Err: err}
		}
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &CacheStore{db: db, path: path, logger: logger.Named("store")}, nil
}

// Path returns the cache file path.
func (s *CacheStore) Path() string { return s.path }

// Close closes the underlying database.
func (s *CacheStore) Close() error {
	return s.db.Close()
}

// Load reads the whole state. A fresh database yields an empty state.
// Any decode or schema problem yields a *CorruptionError.
func (s *CacheStore) Load(ctx context.Context) (*State, error) {
	if err := checkVersion(ctx, s.db); err != nil {
		return nil, err
	}
	st := NewState()
	steps := []struct {
		name string
		fn   func(context.Context, *State) error
	}{
		{"meta", s.loadMeta},
		{"memory", s.loadMemory},
		{"source_index", s.loadIndex},
		{"artifacts", s.loadArtifacts},
	}
	for _, step := range steps {
		if err := step.fn(ctx, st); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &CorruptionError{Reason: "load " + step.name, Err: err}
		}
	}
	return st, nil
}

func (s *CacheStore) loadMeta(ctx context.Context, st *State) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		switch key {
		case metaProjectName:
			st.Meta.ProjectName = value
		case metaDocsRoot:
			st.Meta.DocsRoot = value
		case metaFingerprint:
			st.Meta.SettingsFingerprint = value
		case metaRunID:
			st.Meta.RunID = value
		case metaLastRun:
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return fmt.Errorf("last_run: %w", err)
			}
			st.Meta.LastRun = t
		}
	}
	return rows.Err()
}

func (s *CacheStore) loadMemory(ctx context.Context, st *State) error {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM memory WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), st.Memory)
}

func (s *CacheStore) loadIndex(ctx context.Context, st *State) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, language, content_hash, parse_error, symbols, artifact_hashes FROM source_index ORDER BY path")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var fi index.FileIndex
		var symbols, hashes string
		if err := rows.Scan(&fi.Path, &fi.Language, &fi.ContentHash, &fi.ParseError, &symbols, &hashes); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(symbols), &fi.Symbols); err != nil {
			return fmt.Errorf("symbols for %s: %w", fi.Path, err)
		}
		if err := json.Unmarshal([]byte(hashes), &fi.ArtifactHashes); err != nil {
			return fmt.Errorf("artifact hashes for %s: %w", fi.Path, err)
		}
		st.Index.Files[fi.Path] = &fi
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var graph string
	err = s.db.QueryRowContext(ctx, "SELECT data FROM source_graph WHERE id = 1").Scan(&graph)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(graph), &st.Index.Graph)
}

func (s *CacheStore) loadArtifacts(ctx context.Context, st *State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stage, target, inputs_hash, output_hash, status, content, missing, generated_at
		FROM artifacts ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e CacheEntry
		var missing, generatedAt string
		if err := rows.Scan(&e.ID, &e.Stage, &e.Target, &e.InputsHash, &e.OutputHash,
			&e.Status, &e.Content, &missing, &generatedAt); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(missing), &e.Missing); err != nil {
			return fmt.Errorf("missing list for %s: %w", e.ID, err)
		}
		if len(e.Missing) == 0 {
			e.Missing = nil
		}
		if generatedAt != "" {
			t, err := time.Parse(time.RFC3339Nano, generatedAt)
			if err != nil {
				return fmt.Errorf("generated_at for %s: %w", e.ID, err)
			}
			e.GeneratedAt = t
		}
		st.Artifacts[e.ID] = &e
	}
	return rows.Err()
}

// Save replaces every table with st inside one transaction: either the
// whole state is written or the previous state stays untouched.
func (s *CacheStore) Save(ctx context.Context, st *State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"meta", "memory", "source_index", "source_graph", "artifacts"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (id, version) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET version = excluded.version",
		SchemaVersion,
	); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}

	meta := map[string]string{
		metaProjectName: st.Meta.ProjectName,
		metaDocsRoot:    st.Meta.DocsRoot,
		metaFingerprint: st.Meta.SettingsFingerprint,
		metaRunID:       st.Meta.RunID,
		metaLastRun:     st.Meta.LastRun.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}

	mem, err := json.Marshal(st.Memory)
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO memory (id, data) VALUES (1, ?)", string(mem)); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}

	if err := saveIndex(ctx, tx, st.Index); err != nil {
		return err
	}
	if err := saveArtifacts(ctx, tx, st.Artifacts); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache: %w", err)
	}
	s.logger.Debug("cache saved", "files", len(st.Index.Files), "artifacts", len(st.Artifacts))
	return nil
}

func saveIndex(ctx context.Context, tx *sql.Tx, pi *index.ProjectIndex) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO source_index (path, language, content_hash, parse_error, symbols, artifact_hashes)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, path := range pi.Paths() {
		fi := pi.Files[path]
		symbols, err := json.Marshal(fi.Symbols)
		if err != nil {
			return fmt.Errorf("encode symbols for %s: %w", path, err)
		}
		hashes := fi.ArtifactHashes
		if hashes == nil {
			hashes = map[string]string{}
		}
		hashJSON, err := json.Marshal(hashes)
		if err != nil {
			return fmt.Errorf("encode artifact hashes for %s: %w", path, err)
		}
		if _, err := stmt.ExecContext(ctx, fi.Path, fi.Language, fi.ContentHash, fi.ParseError,
			string(symbols), string(hashJSON)); err != nil {
			return fmt.Errorf("write index entry %s: %w", path, err)
		}
	}

	graph, err := json.Marshal(pi.Graph)
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO source_graph (id, data) VALUES (1, ?)", string(graph)); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}

func saveArtifacts(ctx context.Context, tx *sql.Tx, entries map[string]*CacheEntry) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artifacts (id, stage, target, inputs_hash, output_hash, status, content, missing, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, e := range entries {
		missing := e.Missing
		if missing == nil {
			missing = []string{}
		}
		missingJSON, err := json.Marshal(missing)
		if err != nil {
			return fmt.Errorf("encode missing list for %s: %w", id, err)
		}
		var generatedAt string
		if !e.GeneratedAt.IsZero() {
			generatedAt = e.GeneratedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx, id, e.Stage, e.Target, e.InputsHash, e.OutputHash,
			e.Status, e.Content, string(missingJSON), generatedAt); err != nil {
			return fmt.Errorf("write artifact %s: %w", id, err)
		}
	}
	return nil
}

// Reset moves an unreadable cache file, with its WAL side files, out of the
// way and returns the path it was moved to.
func Reset(path string) (string, error) {
	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, aside); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("move corrupt cache aside: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, aside+suffix); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("move corrupt cache aside: %w", err)
		}
	}
	return aside, nil
}

// OpenState opens the cache and loads it. When the cache is unreadable it
// is moved aside, a new one is created and an empty state is returned with
// Corruption set, so the caller can proceed with a cold run.
func OpenState(ctx context.Context, path string, logger hclog.Logger) (*CacheStore, *State, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s, err := Open(ctx, path, logger)
	if err == nil {
		var st *State
		st, err = s.Load(ctx)
		if err == nil {
			return s, st, nil
		}
		s.Close()
	}
	if !errors.Is(err, ErrCacheCorruption) {
		return nil, nil, err
	}

	aside, rerr := Reset(path)
	if rerr != nil {
		return nil, nil, rerr
	}
	logger.Warn("cache unreadable, starting cold", "error", err, "moved_to", aside)
	s, oerr := Open(ctx, path, logger)
	if oerr != nil {
		return nil, nil, oerr
	}
	st := NewState()
	st.Corruption = err
	return s, st, nil
}

// ErrNoCache is returned by ReadState when no cache exists yet.
var ErrNoCache = errors.New("no cache found")

// ReadState loads the cache at path without creating it. It is meant for
// read-only consumers such as status reporting.
func ReadState(ctx context.Context, path string) (*State, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s", ErrNoCache, path)
	}
	s, err := Open(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Load(ctx)
}
