// SQLite-backed operator preferences
package prefs

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"roverctl/internal/rover"
)

const (
	keyAddress  = "rover_address"
	keyLastMode = "last_mode"
)

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`

// Store persists operator preferences across sessions. Two keys are kept:
// the rover address and the last selected mode.
type Store struct {
	db *sql.DB
}

// Open creates the database (and its parent directory) if needed and
// applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Address returns the stored rover address, or "" when none was saved yet.
func (s *Store) Address() (string, error) {
	return s.get(keyAddress)
}

// SetAddress saves the rover address.
func (s *Store) SetAddress(addr string) error {
	return s.set(keyAddress, addr)
}

// LastMode returns the stored mode. Manual is the default; only an
// explicitly saved autonomous value changes the starting mode.
func (s *Store) LastMode() (rover.Mode, error) {
	v, err := s.get(keyLastMode)
	if err != nil {
		return rover.ModeManual, err
	}
	if m := rover.Mode(v); m == rover.ModeAutonomous {
		return m, nil
	}
	return rover.ModeManual, nil
}

// SetLastMode saves the selected mode.
func (s *Store) SetLastMode(m rover.Mode) error {
	return s.set(keyLastMode, string(m))
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}
