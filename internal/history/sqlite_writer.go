package history

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS telemetry_history (
  session_id TEXT NOT NULL,
  address    TEXT NOT NULL,
  battery    REAL NOT NULL,
  rssi       INTEGER NOT NULL,
  command    TEXT NOT NULL,
  distance   REAL,
  mode       TEXT NOT NULL,
  band       TEXT NOT NULL,
  ts         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_session ON telemetry_history (session_id, ts);
`

// SQLiteWriter appends history rows to a local SQLite database.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens (creating if needed) the database at path and
// applies the schema.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteWriter{db: db}, nil
}

// Write inserts a single row.
func (w *SQLiteWriter) Write(row Row) error {
	var dist interface{}
	if row.Distance != nil {
		dist = *row.Distance
	}
	_, err := w.db.Exec(
		`INSERT INTO telemetry_history (session_id, address, battery, rssi, command, distance, mode, band, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SessionID, row.Address, row.Battery, row.RSSI, row.Command, dist, row.Mode, row.Band, row.Timestamp,
	)
	return err
}

// WriteBatch inserts multiple rows in one transaction.
func (w *SQLiteWriter) WriteBatch(rows []Row) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	for _, r := range rows {
		var dist interface{}
		if r.Distance != nil {
			dist = *r.Distance
		}
		if _, err := tx.Exec(
			`INSERT INTO telemetry_history (session_id, address, battery, rssi, command, distance, mode, band, ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.SessionID, r.Address, r.Battery, r.RSSI, r.Command, dist, r.Mode, r.Band, r.Timestamp,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Rows returns all rows for a session ordered by timestamp. Used by tests
// and the replay command.
func (w *SQLiteWriter) Rows(sessionID string) ([]Row, error) {
	rows, err := w.db.Query(
		`SELECT session_id, address, battery, rssi, command, distance, mode, band, ts
		 FROM telemetry_history WHERE session_id = ? ORDER BY ts`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var dist sql.NullFloat64
		if err := rows.Scan(&r.SessionID, &r.Address, &r.Battery, &r.RSSI, &r.Command, &dist, &r.Mode, &r.Band, &r.Timestamp); err != nil {
			return nil, err
		}
		if dist.Valid {
			v := dist.Float64
			r.Distance = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
