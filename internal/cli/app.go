package cli

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/advisor"
	"github.com/lucasnoah/repobrain/internal/artifacts"
	"github.com/lucasnoah/repobrain/internal/brain"
	"github.com/lucasnoah/repobrain/internal/config"
	"github.com/lucasnoah/repobrain/internal/db"
	"github.com/lucasnoah/repobrain/internal/logging"
	"github.com/lucasnoah/repobrain/internal/proc"
)

// app holds the wired components a command needs.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *db.DB // nil when history is disabled
	brain *brain.Orchestrator
}

// loadConfig loads --config or the default search path and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid config: %w", errors.Join(joined...))
	}
	return cfg, nil
}

// newApp builds config, logger, history store, executor, reader, advisor and
// orchestrator, in that order. The cleanup func syncs the logger and closes
// the store.
func newApp() (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	var (
		store    *db.DB
		recorder brain.Recorder
	)
	if cfg.History.IsEnabled() {
		store, err = openStore(cfg)
		if err != nil {
			logger.Sync()
			return nil, nil, err
		}
		recorder = store
	}
	cleanup := func() {
		if store != nil {
			store.Close()
		}
		logger.Sync()
	}

	exec, err := brain.NewExecutor(brain.ExecutorConfig{
		ProjectRoot:   cfg.Brain.ProjectRoot,
		ControlDir:    cfg.Brain.ControlDir,
		Interpreter:   cfg.Brain.Interpreter,
		Timeout:       cfg.BrainTimeout(),
		MaxConcurrent: cfg.Brain.MaxConcurrent,
		Env:           cfg.Brain.Env,
	}, &proc.ExecRunner{}, recorder, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	reader := artifacts.NewReader(exec.ControlDir(), artifacts.LogOptions{
		Dir:     cfg.Brain.Logs.Dir,
		Pattern: cfg.Brain.Logs.Pattern,
	})

	oracle, err := advisor.NewOracle(advisor.Config{
		Backend: cfg.Advisor.Backend,
		Model:   cfg.Advisor.Model,
		URL:     cfg.Advisor.URL,
		APIKey:  cfg.Advisor.APIKey,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	adv := advisor.New(oracle, cfg.AdvisorTimeout(), logger)

	return &app{
		cfg:   cfg,
		log:   logger,
		db:    store,
		brain: brain.NewOrchestrator(exec, reader, adv, recorder, logger),
	}, cleanup, nil
}

// openStore opens and migrates the history database named by the config.
func openStore(cfg *config.Config) (*db.DB, error) {
	d, err := db.Open(cfg.History.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return d, nil
}

// history returns the store or an error saying history is off.
func (a *app) history() (*db.DB, error) {
	if a.db == nil {
		return nil, errors.New("history is disabled (history.enabled: false)")
	}
	return a.db, nil
}
