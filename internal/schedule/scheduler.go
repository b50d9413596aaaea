// Package schedule runs repository scans on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/brain"
)

// Scanner runs one scan.
type Scanner interface {
	Scan(ctx context.Context, opts brain.ScanOptions) (*brain.ScanReport, error)
}

// Scheduler triggers scans on a cron spec. A scan that is still running when
// the next tick arrives causes that tick to be skipped.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	scanner  Scanner
	opts     brain.ScanOptions
	log      *zap.Logger
}

// ParseSpec parses a standard five-field cron spec or a descriptor such as
// "@hourly" or "@every 30m".
func ParseSpec(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

// New creates a Scheduler. It fails if spec does not parse.
func New(spec string, scanner Scanner, opts brain.ScanOptions, logger *zap.Logger) (*Scheduler, error) {
	sched, err := ParseSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		spec:     spec,
		schedule: sched,
		scanner:  scanner,
		opts:     opts,
		log:      logger.Named("schedule"),
	}, nil
}

// Next returns the first scan time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks until ctx is cancelled, then waits for an in-flight scan to
// return. Scans receive ctx, so cancellation also stops their scripts.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{s.log.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.scanOnce(ctx) }))

	s.log.Info("scheduler started", zap.String("spec", s.spec), zap.Time("next", s.Next(time.Now())))
	c.Start()
	<-ctx.Done()

	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) scanOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	report, err := s.scanner.Scan(ctx, s.opts)
	if err != nil {
		s.log.Warn("scheduled scan failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	s.log.Info("scheduled scan complete",
		zap.String("status", string(report.Status)),
		zap.Int("health_score", report.HealthScore),
		zap.Bool("success", report.Success),
		zap.Duration("duration", time.Since(start)))
}

// cronLogger adapts zap to cron.Logger. cron's own chatter goes to debug.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
