package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Liveness change sources
const (
	SourceProbe   = "probe"
	SourceStartup = "startup"
)

// Control event results
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// DB wraps the SQLite event history
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The CLI and a running watch share the file
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection
func (db *DB) Close() error {
	if db.conn != nil {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint to write pending changes to the main database file
func (db *DB) Flush() error {
	if db.conn != nil {
		// RESTART forces the checkpoint even with active readers
		_, err := db.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

func (db *DB) initSchema() error {
	schema := `
	-- Observed daemon liveness transitions
	CREATE TABLE IF NOT EXISTS liveness_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		running INTEGER NOT NULL,
		source TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Start and stop requests issued by the controller
	CREATE TABLE IF NOT EXISTS control_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		backend TEXT NOT NULL,
		result TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_liveness_changes_timestamp ON liveness_changes(timestamp);
	CREATE INDEX IF NOT EXISTS idx_control_events_timestamp ON control_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_control_events_action ON control_events(action);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// exec retries briefly while the database is locked by another process.
// Logging is best-effort and must never hold up a control operation.
func (db *DB) exec(what, query string, args ...any) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(query, args...)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log %s after %d retries: database locked", what, maxRetries)
}

// LivenessChange is one observed transition of the daemon
type LivenessChange struct {
	ID        int64
	Running   bool
	Source    string
	Timestamp time.Time
}

// LogLivenessChange records that the daemon was observed running or stopped
func (db *DB) LogLivenessChange(running bool, source string) error {
	return db.exec("liveness change",
		`INSERT INTO liveness_changes (running, source, timestamp)
		 VALUES (?, ?, ?)`,
		running, source, time.Now(),
	)
}

// LogLivenessIfChanged records running only when it differs from the last
// stored observation, or when nothing was stored yet. It reports whether a
// row was written.
func (db *DB) LogLivenessIfChanged(running bool, source string) (bool, error) {
	last, err := db.LastLivenessChange()
	if err != nil {
		return false, err
	}
	if last != nil && last.Running == running {
		return false, nil
	}
	if err := db.LogLivenessChange(running, source); err != nil {
		return false, err
	}
	return true, nil
}

// ControlEvent is one start or stop request and its outcome
type ControlEvent struct {
	ID        int64
	Action    string
	Backend   string
	Result    string
	Details   string
	Timestamp time.Time
}

// LogControlEvent records a start or stop request
func (db *DB) LogControlEvent(action, backend, result, details string) error {
	return db.exec("control event",
		`INSERT INTO control_events (action, backend, result, details, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		action, backend, result, details, time.Now(),
	)
}

// RecentLivenessChanges returns the newest transitions first
func (db *DB) RecentLivenessChanges(limit int) ([]LivenessChange, error) {
	rows, err := db.conn.Query(
		`SELECT id, running, source, timestamp
		 FROM liveness_changes
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []LivenessChange
	for rows.Next() {
		var c LivenessChange
		if err := rows.Scan(&c.ID, &c.Running, &c.Source, &c.Timestamp); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// RecentControlEvents returns the newest control events first
func (db *DB) RecentControlEvents(limit int) ([]ControlEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, action, backend, result, COALESCE(details, ''), timestamp
		 FROM control_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ControlEvent
	for rows.Next() {
		var e ControlEvent
		if err := rows.Scan(&e.ID, &e.Action, &e.Backend, &e.Result, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastLivenessChange returns the most recent transition, or nil if none was recorded
func (db *DB) LastLivenessChange() (*LivenessChange, error) {
	changes, err := db.RecentLivenessChanges(1)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return &changes[0], nil
}
