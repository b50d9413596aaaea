// Package web serves the repository brain's JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/brain"
)

const serviceName = "repo-brain-hospital-api"

// History is the read side of the run history store.
type History interface {
	ListPhaseRuns(ctx context.Context, phase string, limit int) ([]brain.PhaseRun, error)
	ListScans(ctx context.Context, limit int) ([]brain.ScanRecord, error)
}

// Options configures a Server.
type Options struct {
	Port    int
	Version string
	History History // nil disables /api/brain/history
	Logger  *zap.Logger
}

// Server is the HTTP API server.
type Server struct {
	brain   *brain.Orchestrator
	history History
	port    int
	version string
	log     *zap.Logger
	mux     *http.ServeMux
}

// NewServer creates a Server with its routes registered.
func NewServer(o *brain.Orchestrator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		brain:   o,
		history: opts.History,
		port:    opts.Port,
		version: opts.Version,
		log:     logger.Named("web"),
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/brain/run", s.handleRun)
	s.mux.HandleFunc("POST /api/brain/phase", s.handleMissingPhase)
	s.mux.HandleFunc("POST /api/brain/phase/{$}", s.handleMissingPhase)
	s.mux.HandleFunc("POST /api/brain/phase/{phaseName}", s.handlePhase)
	s.mux.HandleFunc("POST /api/brain/autopsy", s.phaseHandler(brain.PhaseAutopsy))
	s.mux.HandleFunc("POST /api/brain/doctor", s.phaseHandler(brain.PhaseDoctor))
	s.mux.HandleFunc("POST /api/brain/normalize", s.phaseHandler(brain.PhaseNormalize))

	s.mux.HandleFunc("POST /api/brain/scan", s.handleScan)
	s.mux.HandleFunc("GET /api/brain/diagnosis", s.handleDiagnosis)
	s.mux.HandleFunc("GET /api/brain/detection", s.handleDetection)
	s.mux.HandleFunc("GET /api/brain/logs", s.handleLogs)

	s.mux.HandleFunc("POST /api/brain/repair-pr", s.handleRepairPR)
	s.mux.HandleFunc("POST /api/brain/insight", s.handleInsight)
	s.mux.HandleFunc("POST /api/brain/troubleshoot", s.handleTroubleshoot)
	s.mux.HandleFunc("GET /api/brain/history", s.handleHistory)
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.withRecover(withCORS(s.mux)))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", srv.Addr), zap.String("version", s.version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"success": false, "error": message})
}
