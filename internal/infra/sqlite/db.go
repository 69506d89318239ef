// Package sqlite provides SQLite-based persistent storage for the YVP ledger.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/yvp.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "yvp.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; one connection also serialises claim transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username   TEXT PRIMARY KEY,
			role       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		// Numeric columns stay nullable so rows imported from older
		// backups load; the scanner applies the defaults.
		`CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			difficulty   REAL,
			std_time     REAL,
			quality      REAL DEFAULT 1.0,
			status       TEXT NOT NULL,
			assignee     TEXT NOT NULL DEFAULT '待定',
			type         TEXT NOT NULL,
			is_rnd       BOOLEAN NOT NULL DEFAULT 0,
			deadline     INTEGER,
			completed_at INTEGER,
			feedback     TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed_at)`,

		`CREATE TABLE IF NOT EXISTS penalties (
			id          TEXT PRIMARY KEY,
			username    TEXT NOT NULL,
			occurred_at INTEGER NOT NULL,
			reason      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_penalties_user ON penalties(username, occurred_at)`,

		`CREATE TABLE IF NOT EXISTS rewards (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL,
			amount     REAL NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rewards_user ON rewards(username, created_at)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id      TEXT PRIMARY KEY,
			at      INTEGER NOT NULL,
			actor   TEXT NOT NULL,
			task_id TEXT NOT NULL,
			kind    TEXT NOT NULL,
			detail  TEXT NOT NULL DEFAULT '',
			flagged BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_at ON audit_events(at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by *sql.Row, *sql.Rows and their Tx variants.
type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func affected(res sql.Result) int64 {
	n, _ := res.RowsAffected()
	return n
}
