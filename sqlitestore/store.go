// Package sqlitestore keeps the follower count in a SQLite database, for
// deployments that already keep their state there or want the time of the
// last update alongside the count.
package sqlitestore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS follower_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	last       INTEGER NOT NULL CHECK (last >= 0),
	updated_at TEXT    NOT NULL
)`

// Store is a followerwatch.StateStore backed by a single row.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite state path must be specified")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrapf(err, "error creating directory for %s", path)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "error creating schema in %s", path)
	}
	return &Store{db: db}, nil
}

// Load implements followerwatch.StateStore.
func (s *Store) Load(ctx context.Context) (int, error) {
	var last int
	err := s.db.QueryRowContext(ctx, `SELECT last FROM follower_state WHERE id = 1`).Scan(&last)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "error reading follower state")
	}
	return last, nil
}

// Save implements followerwatch.StateStore.
func (s *Store) Save(ctx context.Context, count int) error {
	if count < 0 {
		return errors.Errorf("refusing to save negative count %d", count)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follower_state (id, last, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET last = excluded.last, updated_at = excluded.updated_at`,
		count, time.Now().UTC().Format(time.RFC3339))
	return errors.Wrap(err, "error saving follower state")
}

// UpdatedAt returns when the count was last saved, or the zero time if it
// never was.
func (s *Store) UpdatedAt(ctx context.Context) (time.Time, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM follower_state WHERE id = 1`).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, "error reading follower state")
	}
	t, err := time.Parse(time.RFC3339, ts)
	return t, errors.Wrap(err, "malformed updated_at")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
