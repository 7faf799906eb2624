// ABOUTME: SQLite Driver for the durable scope using modernc.org/sqlite
// ABOUTME: Stores key/value pairs in a single table with automatic schema creation

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDriver implements Driver on a local SQLite database.
type SQLiteDriver struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteDriver opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteDriver(path string) (*SQLiteDriver, error) {
	logger := slog.Default().With("component", "storage", "driver", "sqlite")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Several widget processes may share one file.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	d := &SQLiteDriver{db: db, logger: logger}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite storage initialized", "path", path)
	return d, nil
}

func (d *SQLiteDriver) createSchema() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS widget_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`)
	return err
}

// Get implements Driver.
func (d *SQLiteDriver) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM widget_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Driver.
func (d *SQLiteDriver) Set(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO widget_kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete implements Driver.
func (d *SQLiteDriver) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM widget_kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close implements Driver.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}
