package db

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tgienger/checker/internal/docstore"
)

//go:embed schema.sql
var schema string

// DB wraps the database connection and implements docstore.Store
type DB struct {
	*sql.DB
	hub *docstore.Hub

	mu      sync.Mutex
	own     map[int64]struct{} // change seqs written through this handle
	lastSeq int64

	stop     context.CancelFunc
	watching chan struct{}
}

var _ docstore.Store = (*DB)(nil)

// New opens the database at path and initializes the schema. An empty path
// uses DefaultPath.
func New(path string) (*DB, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and subscription re-queries.
	db.SetMaxOpenConns(1)

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	d := &DB{DB: db, hub: docstore.NewHub(), own: make(map[int64]struct{})}
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM changes").Scan(&d.lastSeq); err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.stop = cancel
	d.watching = make(chan struct{})
	go d.watch(ctx)
	return d, nil
}

// DefaultPath returns the path to the database file
func DefaultPath() (string, error) {
	// Use XDG data directory or fallback to home directory
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	appDir := filepath.Join(dataDir, "checker")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(appDir, "checker.db"), nil
}

// Close stops the change feed, ends all subscriptions and closes the database
func (db *DB) Close() error {
	db.stop()
	<-db.watching
	db.hub.Close()
	return db.DB.Close()
}

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting sets a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
