// Package brain runs the repository pipeline's phase scripts and turns their
// artifacts into scan reports.
package brain

import (
	"context"
	"errors"
	"time"

	"github.com/lucasnoah/repobrain/internal/artifacts"
)

var (
	// ErrPathEscape is returned when a phase's script path would resolve
	// outside the control directory. It indicates an attack or a bug.
	ErrPathEscape = errors.New("script path escapes control directory")
	// ErrScriptNotFound is returned when the phase has no script.
	ErrScriptNotFound = errors.New("script not found")
	// ErrScriptFailed marks a script that ran and exited non-zero.
	ErrScriptFailed = errors.New("script failed")
	// ErrScanFailed is returned when a scan produced no readable diagnosis.
	ErrScanFailed = errors.New("scan failed")
	// ErrInvalidRepoPath is returned when a scan target is not a directory.
	ErrInvalidRepoPath = errors.New("invalid repository path")
	// ErrRepoNameRequired is returned when a repair is requested without a repo.
	ErrRepoNameRequired = errors.New("repoName is required")
	// ErrInvalidRepoName is returned for repo names outside [owner/]name.
	ErrInvalidRepoName = errors.New("invalid repoName")
)

// ExecutionResult is the outcome of one script run.
type ExecutionResult struct {
	RunID    string   `json:"runId,omitempty"`
	Success  bool     `json:"success"`
	Logs     []string `json:"logs"`
	ExitCode int      `json:"exitCode"`
	Error    string   `json:"error,omitempty"`

	// Err classifies a failure for errors.Is. Nil on success.
	Err error `json:"-"`
}

// ScoredDiagnosis is a diagnosis with its computed health score.
type ScoredDiagnosis struct {
	artifacts.DiagnosisRecord
	HealthScore int `json:"healthScore"`
}

// ScanReport is the outcome of a scan: both phase results plus the scored
// diagnosis they produced.
type ScanReport struct {
	ScoredDiagnosis
	Success bool
	Phases  []ExecutionResult
}

// Logs returns the logs of every phase in run order.
func (r *ScanReport) Logs() []string {
	var out []string
	for _, p := range r.Phases {
		out = append(out, p.Logs...)
	}
	return out
}

// ScanOptions configures a scan.
type ScanOptions struct {
	RepoPath string // optional; exported to scripts as REPO_BRAIN_TARGET
}

// PhaseRun is a recorded script execution.
type PhaseRun struct {
	ID        string
	Phase     string
	Success   bool
	ExitCode  int
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// ScanRecord is a recorded scan.
type ScanRecord struct {
	ID          string
	RepoPath    string
	Repo        string
	Status      string
	HealthScore int
	Success     bool
	Languages   []string
	CI          string
	ScannedAt   time.Time
}

// Recorder persists run history. Implementations must be safe for concurrent
// use.
type Recorder interface {
	RecordPhaseRun(ctx context.Context, run PhaseRun) error
	RecordScan(ctx context.Context, scan ScanRecord) error
}
