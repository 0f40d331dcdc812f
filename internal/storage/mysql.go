package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		api_key CHAR(64) NOT NULL,
		created_at DATETIME NOT NULL,
		last_login DATETIME NULL,
		UNIQUE KEY email (email),
		UNIQUE KEY api_key (api_key)
	)`,
	`CREATE TABLE IF NOT EXISTS scans (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		owner_id VARCHAR(36) NOT NULL,
		text MEDIUMTEXT NOT NULL,
		classification VARCHAR(16) NOT NULL,
		confidence DOUBLE NOT NULL,
		probabilities TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		ip_address VARCHAR(45),
		user_agent VARCHAR(512),
		KEY idx_scans_owner_created (owner_id, created_at),
		KEY idx_scans_classification (classification)
	)`,
}

// MySQLStore is the MySQL persistence backend.
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects to MySQL with the given DSN and bootstraps the
// schema. The DSN must enable parseTime so DATETIME columns scan into
// time.Time.
func NewMySQLStore(dsn string, logger *zap.Logger, retentionDays int, sweepFreq time.Duration) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := newSQLStore(db, mysqlSchema, logger, retentionDays, sweepFreq)
	if err != nil {
		return nil, err
	}
	return &MySQLStore{sqlStore: store}, nil
}
