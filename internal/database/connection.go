// Package database implements the metadata store on an embedded SQLite
// database: users, games, comments and the per-user download/ownership
// lists.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"gamehub/pkg/logger"
)

// DB represents a database connection with migration support
type DB struct {
	*sql.DB
	logger   *logger.ColoredLogger
	migrator *Migrator
}

// Config holds database configuration
type Config struct {
	Path           string
	MigrateOnStart bool
}

// DefaultConfig returns a default database configuration
func DefaultConfig(dataDir string) *Config {
	return &Config{
		Path:           filepath.Join(dataDir, "metadata.db"),
		MigrateOnStart: true,
	}
}

// NewConnection creates a new database connection
func NewConnection(config *Config) (*DB, error) {
	log := logger.StoreLogger

	// Ensure directory exists
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", config.Path+"?_foreign_keys=on&_journal_mode=WAL&_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		logger: log,
	}

	db.migrator = NewMigrator(sqlDB)

	if config.MigrateOnStart {
		if err := db.migrator.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	log.Info("Connected to SQLite database: %s", config.Path)
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
