package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		api_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		last_login TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id TEXT NOT NULL,
		text TEXT NOT NULL,
		classification TEXT NOT NULL,
		confidence REAL NOT NULL,
		probabilities TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		ip_address TEXT,
		user_agent TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scans_owner_created ON scans(owner_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_scans_classification ON scans(classification)`,
}

// SQLiteStore is the SQLite persistence backend.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (or creates) the SQLite database at the given path
// and bootstraps the schema. A retentionDays of zero disables the global
// retention sweep.
func NewSQLiteStore(dbPath string, logger *zap.Logger, retentionDays int, sweepFreq time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite rejects concurrent writers on separate connections.
	db.SetMaxOpenConns(1)

	store, err := newSQLStore(db, sqliteSchema, logger, retentionDays, sweepFreq)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore: store}, nil
}
