// Package watch re-scores the diagnosis whenever the pipeline rewrites it.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/artifacts"
	"github.com/lucasnoah/repobrain/internal/brain"
)

// DefaultDebounce is how long the watcher waits after the last write before
// reading the diagnosis. Scripts often write it in several steps.
const DefaultDebounce = 500 * time.Millisecond

// Source reads and scores the current diagnosis.
type Source interface {
	Diagnosis() (*brain.ScoredDiagnosis, error)
}

// OnChangeFunc receives the re-scored diagnosis, or the error reading it.
type OnChangeFunc func(d *brain.ScoredDiagnosis, err error)

// Watcher watches a control directory for diagnosis changes.
type Watcher struct {
	dir      string
	source   Source
	onChange OnChangeFunc
	debounce time.Duration
	log      *zap.Logger
}

// New creates a Watcher on dir. A zero debounce means DefaultDebounce.
func New(dir string, source Source, onChange OnChangeFunc, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve control dir: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      abs,
		source:   source,
		onChange: onChange,
		debounce: debounce,
		log:      logger.Named("watch"),
	}, nil
}

// Run blocks until ctx is cancelled. Bursts of writes to the diagnosis file
// collapse into one callback.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.log.Debug("diagnosis changed", zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			w.emit()
		}
	}
}

func (w *Watcher) emit() {
	d, err := w.source.Diagnosis()
	switch {
	case err == nil:
		w.log.Info("diagnosis rescored",
			zap.String("status", string(d.Status)),
			zap.Int("health_score", d.HealthScore))
	case errors.Is(err, artifacts.ErrInvalid):
		w.log.Warn("diagnosis invalid", zap.Error(err))
	default:
		w.log.Debug("diagnosis unreadable", zap.Error(err))
	}
	if w.onChange != nil {
		w.onChange(d, err)
	}
}

// relevant reports whether ev may have produced a new diagnosis. Scripts that
// write atomically rename into place, which shows up as a Create.
func relevant(ev fsnotify.Event) bool {
	if filepath.Base(ev.Name) != artifacts.DiagnosisFile {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)
}
