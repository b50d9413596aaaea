package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/repobrain/internal/brain"
)

// DB satisfies brain.Recorder.
var _ brain.Recorder = (*DB)(nil)

// RecordPhaseRun inserts a phase run.
func (d *DB) RecordPhaseRun(ctx context.Context, run brain.PhaseRun) error {
	_, err := d.conn.ExecContext(ctx, d.Rebind(
		`INSERT INTO phase_runs (id, phase, success, exit_code, error, duration_ms, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.Phase, run.Success, run.ExitCode, run.Error, run.Duration.Milliseconds(), FormatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("record phase run: %w", err)
	}
	return nil
}

// RecordScan inserts a scan.
func (d *DB) RecordScan(ctx context.Context, s brain.ScanRecord) error {
	_, err := d.conn.ExecContext(ctx, d.Rebind(
		`INSERT INTO scans (id, repo_path, repo, status, health_score, success, languages, ci, scanned_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.RepoPath, s.Repo, s.Status, s.HealthScore, s.Success, strings.Join(s.Languages, ","), s.CI, FormatTime(s.ScannedAt),
	)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

// ListPhaseRuns returns the most recent runs, newest first. phase filters
// when non-empty.
func (d *DB) ListPhaseRuns(ctx context.Context, phase string, limit int) ([]brain.PhaseRun, error) {
	query := `SELECT id, phase, success, exit_code, error, duration_ms, started_at FROM phase_runs`
	var args []any
	if phase != "" {
		query += ` WHERE phase = ?`
		args = append(args, phase)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list phase runs: %w", err)
	}
	defer rows.Close()

	var runs []brain.PhaseRun
	for rows.Next() {
		var r brain.PhaseRun
		var durationMs int64
		var startedAt string
		if err := rows.Scan(&r.ID, &r.Phase, &r.Success, &r.ExitCode, &r.Error, &durationMs, &startedAt); err != nil {
			return nil, fmt.Errorf("scan phase run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.StartedAt = parseTime(startedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const scanColumns = `id, repo_path, repo, status, health_score, success, languages, ci, scanned_at`

// ListScans returns the most recent scans, newest first.
func (d *DB) ListScans(ctx context.Context, limit int) ([]brain.ScanRecord, error) {
	rows, err := d.conn.QueryContext(ctx, d.Rebind(
		`SELECT `+scanColumns+` FROM scans ORDER BY scanned_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []brain.ScanRecord
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *s)
	}
	return scans, rows.Err()
}

// LatestScan returns the most recent scan, or nil if there is none.
func (d *DB) LatestScan(ctx context.Context) (*brain.ScanRecord, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans ORDER BY scanned_at DESC, id DESC LIMIT 1`)
	s, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*brain.ScanRecord, error) {
	var s brain.ScanRecord
	var langs, scannedAt string
	err := row.Scan(&s.ID, &s.RepoPath, &s.Repo, &s.Status, &s.HealthScore, &s.Success, &langs, &s.CI, &scannedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan scan row: %w", err)
	}
	if langs != "" {
		s.Languages = strings.Split(langs, ",")
	}
	s.ScannedAt = parseTime(scannedAt)
	return &s, nil
}

// PruneBefore deletes history older than cutoff and returns the number of
// rows removed.
func (d *DB) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := FormatTime(cutoff)
	var total int64
	for _, q := range []string{
		`DELETE FROM phase_runs WHERE started_at < ?`,
		`DELETE FROM scans WHERE scanned_at < ?`,
	} {
		res, err := d.conn.ExecContext(ctx, d.Rebind(q), ts)
		if err != nil {
			return total, fmt.Errorf("prune history: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
