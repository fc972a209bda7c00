package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS graphs (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps named graphs in a SQLite database. Each store value
// reads and writes the row for one name.
type SQLiteStore struct {
	db   *sql.DB
	name string
	own  bool
}

// OpenSQLite opens (creating if needed) the database at path and returns
// a store for the graph called name. Close releases the database.
func OpenSQLite(ctx context.Context, path, name string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &SQLiteStore{db: db, name: name, own: true}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing database. The caller keeps ownership of
// db and must call Migrate before first use.
func NewSQLiteStore(db *sql.DB, name string) *SQLiteStore {
	return &SQLiteStore{db: db, name: name}
}

// Migrate creates the graphs table if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create graphs table: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM graphs WHERE name = ?`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("graph %q: %w", s.name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load graph %q: %w", s.name, err)
	}
	return data, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO graphs (name, data, updated_at) VALUES (?, ?, ?)`,
		s.name, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save graph %q: %w", s.name, err)
	}
	return nil
}

// Names lists every graph in the database, sorted.
func (s *SQLiteStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM graphs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Close closes the database if OpenSQLite opened it.
func (s *SQLiteStore) Close() error {
	if !s.own {
		return nil
	}
	return s.db.Close()
}
