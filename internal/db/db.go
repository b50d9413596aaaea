package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"

	// timeFormat is fixed-width so that text timestamps sort chronologically.
	timeFormat = "2006-01-02T15:04:05.000000Z"
)

// DB wraps the history database connection.
type DB struct {
	conn   *sql.DB
	driver string
}

// DefaultPath returns ~/.repobrain/history.db, creating the directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".repobrain")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// driverFor picks a database/sql driver from a DSN. postgres:// and
// postgresql:// URLs go to pgx; anything else is a SQLite path.
func driverFor(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return driverPostgres, dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return driverSQLite, strings.TrimPrefix(dsn, "sqlite://")
	default:
		return driverSQLite, dsn
	}
}

// Open opens or creates the history database. An empty dsn means
// DefaultPath.
func Open(dsn string) (*DB, error) {
	if dsn == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		dsn = p
	}
	driver, source := driverFor(dsn)

	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == driverSQLite {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if driver == driverSQLite {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := conn.Exec(pragma); err != nil {
				conn.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}
	return &DB{conn: conn, driver: driver}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Rebind rewrites ? placeholders to $1, $2, ... for postgres. Queries in this
// module never contain a literal '?'.
func (d *DB) Rebind(query string) string {
	if d.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Statements are executed one at a time; the postgres extended protocol does
// not accept several per Exec.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS phase_runs (
    id          TEXT PRIMARY KEY,
    phase       TEXT NOT NULL,
    success     BOOLEAN NOT NULL,
    exit_code   INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL,
    started_at  TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_phase_runs_started ON phase_runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_phase_runs_phase ON phase_runs(phase, started_at)`,
	`CREATE TABLE IF NOT EXISTS scans (
    id           TEXT PRIMARY KEY,
    repo_path    TEXT NOT NULL DEFAULT '',
    repo         TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    health_score INTEGER NOT NULL,
    success      BOOLEAN NOT NULL,
    languages    TEXT NOT NULL DEFAULT '',
    ci           TEXT NOT NULL DEFAULT '',
    scanned_at   TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_scans_scanned ON scans(scanned_at)`,
}

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaV1 {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}
	if _, err := tx.Exec(d.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"), 1, FormatTime(time.Now())); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"scans", "phase_runs", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}

// FormatTime renders t in the store's sortable text format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
