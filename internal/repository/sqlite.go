package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/medistock/device/internal/models"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so repositories can take part in
// the outbox transaction
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteDB creates and initializes the local SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Outbox queue of pending mutations
	CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		local_version INTEGER NOT NULL DEFAULT 1,
		remote_version INTEGER,
		last_known_remote_updated_at INTEGER,
		status TEXT NOT NULL DEFAULT 'PENDING',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_attempt_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_id TEXT,
		site_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type, entity_id);

	-- Device-local settings (client id, last sync outcome)
	CREATE TABLE IF NOT EXISTS device_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// One record table per synchronized entity; rows are stored as the raw
	// JSON snapshot plus the columns the engine filters on.
	for _, table := range models.AllTables() {
		stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			site_id TEXT,
			client_id TEXT,
			updated_at INTEGER,
			data TEXT NOT NULL
		);`, table)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}

	return nil
}

// validTable guards dynamically built statements against unknown table names
func validTable(table string) error {
	for _, t := range models.AllTables() {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("unknown table %q", strings.TrimSpace(table))
}
