// Package cache persists compiled prototypes in a SQLite database, keyed by
// the SHA-256 of the source text. Entries carry the bytecode format version;
// a mismatch on read behaves like a miss and the stale row is dropped.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/crescent-lang/crescent/pkg/bytecode"
)

var log = commonlog.GetLogger("crescent.cache")

// ErrNotFound is returned by Get when no usable entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Key identifies a source chunk by content.
type Key [sha256.Size]byte

// SourceKey hashes source text into a cache key.
func SourceKey(source string) Key {
	return sha256.Sum256([]byte(source))
}

// String renders the key as lowercase hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Store is a content-addressed prototype cache. It is safe for concurrent
// use by multiple goroutines.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS prototypes (
		key            TEXT PRIMARY KEY,
		format_version INTEGER NOT NULL,
		proto          BLOB NOT NULL,
		created_at     TIMESTAMP NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	log.Debugf("cache opened at %s", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a compiled prototype under key, replacing any previous entry.
func (s *Store) Put(key Key, proto *bytecode.Prototype) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := marshalProto(proto)
	if err != nil {
		return fmt.Errorf("failed to encode prototype: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO prototypes (key, format_version, proto, created_at)
		VALUES (?, ?, ?, ?)
	`, key.String(), bytecode.FormatVersion, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store prototype: %w", err)
	}
	return nil
}

// Get loads the prototype stored under key. A missing entry, or one written
// by a different bytecode format version, yields ErrNotFound; the stale row
// is deleted on the way out.
func (s *Store) Get(key Key) (*bytecode.Prototype, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int
	var data []byte
	err := s.db.QueryRow(`
		SELECT format_version, proto FROM prototypes WHERE key = ?
	`, key.String()).Scan(&version, &data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prototype: %w", err)
	}

	if version != bytecode.FormatVersion {
		log.Debugf("discarding stale entry %s (format %d, want %d)", key, version, bytecode.FormatVersion)
		if _, err := s.db.Exec("DELETE FROM prototypes WHERE key = ?", key.String()); err != nil {
			return nil, fmt.Errorf("failed to drop stale entry: %w", err)
		}
		return nil, ErrNotFound
	}

	proto, err := unmarshalProto(data)
	if err != nil {
		return nil, err
	}
	return proto, nil
}

// Purge deletes every entry.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM prototypes"); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	return nil
}

// Len reports the number of stored entries.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM prototypes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
