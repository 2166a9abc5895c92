package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

//go:embed migrations/*
var migrationsFS embed.FS

// SQLiteStore persists values in a single key/value table
type SQLiteStore struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

type kvRow struct {
	Name string `db:"name"`
	Data []byte `db:"data"`
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "storage").Logger(),
	}
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Load returns the value stored under key
func (s *SQLiteStore) Load(key string) ([]byte, error) {
	var row kvRow
	err := s.db.Get(&row, "SELECT name, data FROM kv WHERE name = $1;", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return row.Data, nil
}

// Save upserts value under key
func (s *SQLiteStore) Save(key string, value []byte) error {
	query := `
        INSERT INTO kv (name, data) VALUES (:name, :data)
        ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP;`
	if _, err := s.db.NamedExec(query, kvRow{Name: key, Data: value}); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE name = $1;", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListKeys returns stored keys with the given prefix
func (s *SQLiteStore) ListKeys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.Select(&keys, "SELECT name FROM kv WHERE name LIKE $1 ORDER BY name;", prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate executes every embedded .up.sql file in name order
func (s *SQLiteStore) Migrate() error {
	migrationsDir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	entries, err := fs.ReadDir(migrationsDir, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(migrationsDir, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		s.logger.Debug().Str("migration", name).Msg("Migration applied")
	}
	return nil
}
