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

// DB wraps the SQLite journal of shell and backend lifecycle events
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

	// WAL lets `evalshell history` read while the shell writes
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

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	-- One row per shell run
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		port INTEGER NOT NULL DEFAULT 0,
		version TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	-- Lifecycle events of the shell and its backend
	CREATE TABLE IF NOT EXISTS shell_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_shell_events_timestamp ON shell_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_shell_events_run ON shell_events(run_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Run is one shell run
type Run struct {
	RunID     string
	Pid       int
	Port      int
	Version   string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Event is a journalled lifecycle event
type Event struct {
	ID        int64
	RunID     string
	EventType string
	Details   string
	Timestamp time.Time
}

// StartRun records a new shell run
func (db *DB) StartRun(runID string, pid int, version string) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (run_id, pid, version, started_at) VALUES (?, ?, ?, ?)`,
		runID, pid, version, time.Now(),
	)
	return err
}

// SetRunPort records the port allocated for a run
func (db *DB) SetRunPort(runID string, port int) error {
	_, err := db.conn.Exec(`UPDATE runs SET port = ? WHERE run_id = ?`, port, runID)
	return err
}

// EndRun marks a run as finished
func (db *DB) EndRun(runID string) error {
	_, err := db.conn.Exec(`UPDATE runs SET ended_at = ? WHERE run_id = ?`, time.Now(), runID)
	return err
}

// LogEvent logs a lifecycle event to the database
func (db *DB) LogEvent(runID, eventType, details string) error {
	// Retry briefly if database is locked; journalling must never stall a restart
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(
			`INSERT INTO shell_events (run_id, event_type, details, timestamp)
			 VALUES (?, ?, ?, ?)`,
			runID, eventType, details, time.Now(),
		)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log event after %d retries: database locked", maxRetries)
}

// GetRecentEvents retrieves the most recent events across all runs, newest first
func (db *DB) GetRecentEvents(limit int) ([]Event, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, event_type, details, timestamp
		 FROM shell_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// GetRunEvents retrieves all events of one run in the order they happened
func (db *DB) GetRunEvents(runID string) ([]Event, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, event_type, details, timestamp
		 FROM shell_events
		 WHERE run_id = ?
		 ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// GetRecentRuns retrieves the most recent runs, newest first
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, pid, port, COALESCE(version, ''), started_at, ended_at
		 FROM runs
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ended sql.NullTime
		if err := rows.Scan(&r.RunID, &r.Pid, &r.Port, &r.Version, &r.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}
