package brain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/advisor"
	"github.com/lucasnoah/repobrain/internal/artifacts"
	"github.com/lucasnoah/repobrain/internal/health"
)

// Well-known phases.
const (
	PhaseDetect    = "detect"
	PhaseDiagnose  = "diagnose"
	PhaseAutopsy   = "autopsy"
	PhaseDoctor    = "doctor"
	PhaseNormalize = "normalize"
	PhaseAutoPR    = "auto-pr"
)

// Orchestrator sequences phases into the higher-level operations the API and
// CLI expose.
type Orchestrator struct {
	exec     *Executor
	reader   *artifacts.Reader
	advisor  *advisor.Advisor
	recorder Recorder
	log      *zap.Logger
}

// NewOrchestrator wires an Orchestrator. adv and recorder may be nil.
func NewOrchestrator(exec *Executor, reader *artifacts.Reader, adv *advisor.Advisor, recorder Recorder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if adv == nil {
		adv = advisor.New(nil, 0, logger)
	}
	return &Orchestrator{
		exec:     exec,
		reader:   reader,
		advisor:  adv,
		recorder: recorder,
		log:      logger.Named("orchestrator"),
	}
}

// Executor returns the underlying executor.
func (o *Orchestrator) Executor() *Executor { return o.exec }

// Reader returns the artifact reader.
func (o *Orchestrator) Reader() *artifacts.Reader { return o.reader }

// Advisor returns the advisor.
func (o *Orchestrator) Advisor() *advisor.Advisor { return o.advisor }

// RunFull runs the whole pipeline.
func (o *Orchestrator) RunFull(ctx context.Context) ExecutionResult {
	return o.exec.RunFull(ctx)
}

// RunPhase runs a single named phase.
func (o *Orchestrator) RunPhase(ctx context.Context, name string) ExecutionResult {
	return o.exec.RunPhase(ctx, name)
}

func (o *Orchestrator) Autopsy(ctx context.Context) ExecutionResult {
	return o.exec.RunPhase(ctx, PhaseAutopsy)
}

func (o *Orchestrator) Doctor(ctx context.Context) ExecutionResult {
	return o.exec.RunPhase(ctx, PhaseDoctor)
}

func (o *Orchestrator) Normalize(ctx context.Context) ExecutionResult {
	return o.exec.RunPhase(ctx, PhaseNormalize)
}

// Diagnosis reads the current diagnosis and scores it.
func (o *Orchestrator) Diagnosis() (*ScoredDiagnosis, error) {
	d, err := o.reader.Diagnosis()
	if err != nil {
		return nil, err
	}
	return &ScoredDiagnosis{DiagnosisRecord: *d, HealthScore: health.Score(*d)}, nil
}

// Scan runs detect then diagnose, reads the resulting diagnosis and scores
// it. diagnose runs even if detect failed; the report's Success reflects the
// last phase.
func (o *Orchestrator) Scan(ctx context.Context, opts ScanOptions) (*ScanReport, error) {
	var extra map[string]string
	var target string
	if opts.RepoPath != "" {
		abs, err := filepath.Abs(opts.RepoPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRepoPath, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRepoPath, filepath.Base(abs))
		}
		target = abs
		extra = map[string]string{"REPO_BRAIN_TARGET": abs}
	}

	start := time.Now()
	detect := o.exec.RunPhaseEnv(ctx, PhaseDetect, extra)
	diagnose := o.exec.RunPhaseEnv(ctx, PhaseDiagnose, extra)

	scored, err := o.Diagnosis()
	if err != nil {
		o.log.Warn("scan produced no diagnosis",
			zap.Bool("detect_ok", detect.Success), zap.Bool("diagnose_ok", diagnose.Success), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
	}

	report := &ScanReport{
		ScoredDiagnosis: *scored,
		Success:         diagnose.Success,
		Phases:          []ExecutionResult{detect, diagnose},
	}
	o.log.Info("scan complete",
		zap.String("status", string(scored.Status)),
		zap.Int("health_score", scored.HealthScore),
		zap.Bool("success", report.Success),
		zap.Duration("duration", time.Since(start)))

	o.recordScan(ctx, target, report, start)
	return report, nil
}

func (o *Orchestrator) recordScan(ctx context.Context, target string, r *ScanReport, start time.Time) {
	if o.recorder == nil {
		return
	}
	rec := ScanRecord{
		ID:          uuid.NewString(),
		RepoPath:    target,
		Repo:        r.Repo,
		Status:      string(r.Status),
		HealthScore: r.HealthScore,
		Success:     r.Success,
		Languages:   r.Languages,
		CI:          r.CI,
		ScannedAt:   start.UTC(),
	}
	if err := o.recorder.RecordScan(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Warn("record scan", zap.Error(err))
	}
}
