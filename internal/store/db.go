package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database, used by the demo API when
// nothing needs to survive a restart.
const MemoryPath = ":memory:"

// DB wraps the SQLite database behind the local marketplace API.
type DB struct {
	*sql.DB
	path string
}

// Open opens the marketplace database at path, creating its directory if
// needed. An empty path or MemoryPath yields an in-memory database.
func Open(path string) (*DB, error) {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")

	memory := path == "" || path == MemoryPath
	dsn := "file::memory:"
	if memory {
		path = MemoryPath
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		params.Set("_journal_mode", "WAL")
		dsn = "file:" + path
	}

	db, err := sql.Open("sqlite3", dsn+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if memory {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return &DB{DB: db, path: path}, nil
}

// Path reports where the database lives, or MemoryPath.
func (db *DB) Path() string { return db.path }
