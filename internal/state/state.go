// Package state persists the process table across daemon restarts. The
// snapshot is a full dump: saving replaces the previous snapshot in one
// transaction, and loading returns every saved row in id order.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
)

// ErrPersistence wraps any snapshot read or write failure. A failed save
// leaves both the in-memory table and the previous committed snapshot
// untouched.
var ErrPersistence = errors.New("state persistence failed")

const schema = `
CREATE TABLE IF NOT EXISTS processes (
	id       INTEGER PRIMARY KEY,
	name     TEXT NOT NULL UNIQUE,
	config   TEXT NOT NULL,
	restarts INTEGER NOT NULL DEFAULT 0,
	status   INTEGER NOT NULL DEFAULT 0
);
`

// Store is a SQLite-backed snapshot of the registry.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the snapshot database at path, creating parent
// directories as needed. An empty path opens an in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		dsn = path + "?_journal=WAL&_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the on-disk location, or "" for in-memory stores.
func (s *Store) Path() string { return s.path }

// Save replaces the stored snapshot with saved atomically.
func (s *Store) Save(ctx context.Context, saved []registry.Saved) error {
	if err := s.save(ctx, saved); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, saved []registry.Saved) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM processes`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	for _, sv := range saved {
		cfg, err := json.Marshal(sv.Config)
		if err != nil {
			return fmt.Errorf("failed to encode config for %q: %w", sv.Config.Name, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO processes (id, name, config, restarts, status) VALUES (?, ?, ?, ?, ?)`,
			sv.ID, sv.Config.Name, string(cfg), sv.Restarts, int(sv.Status))
		if err != nil {
			return fmt.Errorf("failed to save process %q: %w", sv.Config.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot in id order. An empty database yields an
// empty slice, not an error.
func (s *Store) Load(ctx context.Context) ([]registry.Saved, error) {
	saved, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return saved, nil
}

func (s *Store) load(ctx context.Context) ([]registry.Saved, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, config, restarts, status FROM processes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []registry.Saved
	for rows.Next() {
		var (
			sv     registry.Saved
			cfg    string
			status int
		)
		if err := rows.Scan(&sv.ID, &cfg, &sv.Restarts, &status); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if err := json.Unmarshal([]byte(cfg), &sv.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config for id %d: %w", sv.ID, err)
		}
		sv.Status = process.Status(status)
		out = append(out, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot: %w", err)
	}
	return out, nil
}
