// Package store implements the on-disk catalog: a single SQLite database
// holding skills with embeddings, file hashes, sessions, the append-only
// message log, and per-session active skills. Vector search runs through
// the sqlite-vec extension when it is available and falls back to a
// brute-force cosine scan otherwise; both paths see the same committed
// snapshot as the relational queries.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"impressionism/internal/logging"
)

const (
	schemaVersion = 1
	dbFileName    = "catalog.db"
	lockFileName  = ".lock"
)

const createSchema = `
CREATE TABLE IF NOT EXISTS catalog_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS skill_index (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	description TEXT,
	keywords TEXT,
	sticky INTEGER NOT NULL DEFAULT 0,
	embedding BLOB,
	frontmatter TEXT,
	content_hash TEXT NOT NULL,
	indexed_at TIMESTAMP NOT NULL,
	source TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_hashes (
	path TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	last_checked TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	workspace_path TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	last_active TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS message_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	role TEXT NOT NULL,
	event_type TEXT NOT NULL,
	tool_name TEXT,
	content_preview TEXT,
	content_embedding BLOB,
	active_skills TEXT,
	logged_at TIMESTAMP NOT NULL,
	UNIQUE(session_id, sequence)
);

CREATE TABLE IF NOT EXISTS session_skills (
	session_id TEXT NOT NULL,
	skill_id TEXT NOT NULL,
	activated_at TIMESTAMP NOT NULL,
	activation_reason TEXT,
	PRIMARY KEY (session_id, skill_id),
	FOREIGN KEY (skill_id) REFERENCES skill_index(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_message_log_session ON message_log(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_session_skills_session ON session_skills(session_id);
CREATE INDEX IF NOT EXISTS idx_skill_index_source ON skill_index(source);
`

// Options configures Open.
type Options struct {
	// Dimension is the embedding dimensionality for the vector index.
	Dimension int

	// LockTimeout bounds waiting for the catalog write lock.
	LockTimeout time.Duration
}

// Store is the catalog handle. Safe for concurrent use within a process;
// cross-process writers are serialized with an advisory file lock.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	dir       string
	dimension int
	vectorExt bool
	lock      *fileLock
}

// Open opens or creates the catalog under dir.
func Open(dir string, opts Options) (*Store, error) {
	log := logging.Get(logging.CategoryStore)
	if opts.Dimension <= 0 {
		opts.Dimension = 384
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 10 * time.Second
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrStoreUnavailable, dir, err)
	}

	path := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite3", path+"?_fk=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debugf("journal_mode=WAL not applied: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debugf("synchronous=NORMAL not applied: %v", err)
	}

	s := &Store{
		db:        db,
		dir:       dir,
		dimension: opts.Dimension,
		lock:      newFileLock(filepath.Join(dir, lockFileName), opts.LockTimeout),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	s.detectVecExtension()
	log.Debugf("catalog open at %s (dim=%d, vec=%v)", path, s.dimension, s.vectorExt)
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the catalog directory.
func (s *Store) Dir() string { return s.dir }

// Dimension returns the configured embedding dimensionality.
func (s *Store) Dimension() int { return s.dimension }

func (s *Store) initSchema() error {
	var existing string
	err := s.db.QueryRow("SELECT value FROM catalog_meta WHERE key = 'schema_version'").Scan(&existing)
	switch {
	case err == nil:
		if existing != strconv.Itoa(schemaVersion) {
			return fmt.Errorf("%w: store has version %s, this build requires %d", ErrSchemaMismatch, existing, schemaVersion)
		}
		return nil
	case err == sql.ErrNoRows || isMissingTable(err):
		// Fresh catalog: create everything and stamp the version.
	default:
		return fmt.Errorf("%w: read schema version: %v", ErrStoreUnavailable, err)
	}

	if _, err := s.db.Exec(createSchema); err != nil {
		return fmt.Errorf("%w: create schema: %v", ErrStoreUnavailable, err)
	}
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO catalog_meta (key, value) VALUES ('schema_version', ?)",
		strconv.Itoa(schemaVersion),
	); err != nil {
		return fmt.Errorf("%w: stamp schema version: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// withWriteLock serializes a mutating operation against other processes
// via the advisory file lock, and against in-process writers via mu.
func (s *Store) withWriteLock(fn func(tx *sql.Tx) error) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	return nil
}
