// Package analytics aggregates run history into per-phase and per-repository
// statistics.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

// PhaseStats holds duration and outcome stats for a phase.
type PhaseStats struct {
	Phase       string  `json:"phase"`
	Count       int     `json:"count"`
	SuccessRate float64 `json:"success_pct"`
	Avg         float64 `json:"avg_seconds"`
	P50         float64 `json:"p50_seconds"`
	P95         float64 `json:"p95_seconds"`
}

// QueryPhaseStats returns per-phase run counts, success rates and duration
// percentiles. since is a timestamp in the store's format; empty means all.
func QueryPhaseStats(database DB, since string) ([]PhaseStats, error) {
	query := `SELECT phase, success, duration_ms FROM phase_runs`
	var args []any
	if since != "" {
		query += ` WHERE started_at >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query phase stats: %w", err)
	}
	defer rows.Close()

	type phaseInfo struct {
		successes int
		durations []float64
	}
	byPhase := make(map[string]*phaseInfo)
	for rows.Next() {
		var phase string
		var success bool
		var durationMs int64
		if err := rows.Scan(&phase, &success, &durationMs); err != nil {
			return nil, fmt.Errorf("scan phase stats: %w", err)
		}
		info, ok := byPhase[phase]
		if !ok {
			info = &phaseInfo{}
			byPhase[phase] = info
		}
		if success {
			info.successes++
		}
		info.durations = append(info.durations, float64(durationMs)/1000)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []PhaseStats
	for phase, info := range byPhase {
		sort.Float64s(info.durations)
		results = append(results, PhaseStats{
			Phase:       phase,
			Count:       len(info.durations),
			SuccessRate: pct(info.successes, len(info.durations)),
			Avg:         avg(info.durations),
			P50:         percentile(info.durations, 50),
			P95:         percentile(info.durations, 95),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Phase < results[j].Phase
	})
	return results, nil
}

// RepoTrend summarizes the health scores recorded for one repository.
type RepoTrend struct {
	Repo   string  `json:"repo"`
	Scans  int     `json:"scans"`
	Latest int     `json:"latest_score"`
	Avg    float64 `json:"avg_score"`
	Min    int     `json:"min_score"`
	Max    int     `json:"max_score"`
	Delta  int     `json:"delta"` // latest minus first
}

// QueryRepoTrends returns score trends per repository, ordered by repo.
// Scans without a repo name are grouped under their repo path.
func QueryRepoTrends(database DB, since string) ([]RepoTrend, error) {
	query := `SELECT repo, repo_path, health_score FROM scans`
	var args []any
	if since != "" {
		query += ` WHERE scanned_at >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY scanned_at ASC, id ASC`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query repo trends: %w", err)
	}
	defer rows.Close()

	scores := make(map[string][]int)
	for rows.Next() {
		var repo, repoPath string
		var score int
		if err := rows.Scan(&repo, &repoPath, &score); err != nil {
			return nil, fmt.Errorf("scan repo trend: %w", err)
		}
		key := repo
		if key == "" {
			key = repoPath
		}
		if key == "" {
			key = "(default)"
		}
		scores[key] = append(scores[key], score)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []RepoTrend
	for repo, s := range scores {
		t := RepoTrend{
			Repo:   repo,
			Scans:  len(s),
			Latest: s[len(s)-1],
			Min:    s[0],
			Max:    s[0],
			Delta:  s[len(s)-1] - s[0],
		}
		f := make([]float64, len(s))
		for i, v := range s {
			f[i] = float64(v)
			t.Min = min(t.Min, v)
			t.Max = max(t.Max, v)
		}
		t.Avg = avg(f)
		results = append(results, t)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Repo < results[j].Repo
	})
	return results, nil
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
