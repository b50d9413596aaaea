package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/artifacts"
	"github.com/lucasnoah/repobrain/internal/brain"
	"github.com/lucasnoah/repobrain/internal/phase"
	"github.com/lucasnoah/repobrain/internal/proc"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	noLogsLine          = "No logs available"
)

// runContext detaches a phase run from the request: a launched script runs
// until it finishes or hits the executor timeout, even if the client leaves.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// phaseStatus maps an execution result to an HTTP status. A script that ran
// and failed is still a 200; the payload carries success:false.
func phaseStatus(res brain.ExecutionResult) int {
	switch {
	case res.Success:
		return http.StatusOK
	case errors.Is(res.Err, phase.ErrInvalidName), errors.Is(res.Err, brain.ErrPathEscape):
		return http.StatusBadRequest
	case errors.Is(res.Err, proc.ErrSpawn), errors.Is(res.Err, proc.ErrTimeout):
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// decodeBody decodes an optional JSON body into v. An empty body is not an
// error.
func decodeBody(r *http.Request, w http.ResponseWriter, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
		"service": serviceName,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	res := s.brain.RunFull(runContext(r))
	writeJSON(w, phaseStatus(res), res)
}

func (s *Server) handleMissingPhase(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusBadRequest, "Phase name is required")
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("phaseName")
	if strings.TrimSpace(name) == "" {
		s.handleMissingPhase(w, r)
		return
	}
	res := s.brain.RunPhase(runContext(r), name)
	writeJSON(w, phaseStatus(res), res)
}

func (s *Server) phaseHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.brain.RunPhase(runContext(r), name)
		writeJSON(w, phaseStatus(res), res)
	}
}

type scanRequest struct {
	RepoPath string `json:"repoPath"`
}

type scanResponse struct {
	Success         bool                   `json:"success"`
	PipelineSuccess bool                   `json:"pipelineSuccess"`
	Data            *brain.ScoredDiagnosis `json:"data"`
	Logs            []string               `json:"logs"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := s.brain.Scan(runContext(r), brain.ScanOptions{RepoPath: req.RepoPath})
	switch {
	case errors.Is(err, brain.ErrInvalidRepoPath):
		writeError(w, http.StatusBadRequest, "repoPath must be an existing directory")
		return
	case err != nil:
		s.log.Warn("scan failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to scan repository")
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Success:         true,
		PipelineSuccess: report.Success,
		Data:            &report.ScoredDiagnosis,
		Logs:            report.Logs(),
	})
}

func (s *Server) handleDiagnosis(w http.ResponseWriter, r *http.Request) {
	d, err := s.brain.Diagnosis()
	if err != nil {
		s.artifactError(w, "Diagnosis", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": d})
}

func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	d, err := s.brain.Reader().Detection()
	if err != nil {
		s.artifactError(w, "Detection", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": d})
}

func (s *Server) artifactError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, artifacts.ErrInvalid):
		s.log.Warn("artifact invalid", zap.String("artifact", what), zap.Error(err))
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, artifacts.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	default:
		s.log.Error("read artifact", zap.String("artifact", what), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read "+strings.ToLower(what))
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	name, lines, err := s.brain.Reader().LatestLog()
	switch {
	case errors.Is(err, artifacts.ErrNotFound):
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "logs": []string{noLogsLine}})
		return
	case err != nil:
		s.log.Error("read logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read logs")
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "file": name, "logs": lines})
}

type repairRequest struct {
	RepoName string `json:"repoName"`
}

func (s *Server) handleRepairPR(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.brain.CreateRepairPR(runContext(r), req.RepoName)
	switch {
	case errors.Is(err, brain.ErrRepoNameRequired):
		writeError(w, http.StatusBadRequest, "Repository name is required")
		return
	case errors.Is(err, brain.ErrInvalidRepoName):
		writeError(w, http.StatusBadRequest, "Invalid repository name")
		return
	case err != nil:
		s.log.Error("repair PR", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create repair PR")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	d, err := s.brain.Diagnosis()
	if err != nil {
		s.artifactError(w, "Diagnosis", err)
		return
	}
	insight := s.brain.Advisor().RepoInsight(r.Context(), d.DiagnosisRecord)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"insight":     insight,
		"healthScore": d.HealthScore,
	})
}

type troubleshootRequest struct {
	Logs []string `json:"logs"`
}

func (s *Server) handleTroubleshoot(w http.ResponseWriter, r *http.Request) {
	var req troubleshootRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	logs := req.Logs
	if len(logs) == 0 {
		_, lines, err := s.brain.Reader().LatestLog()
		if err != nil && !errors.Is(err, artifacts.ErrNotFound) {
			s.log.Error("read logs", zap.Error(err))
		}
		logs = lines
	}
	if len(logs) == 0 {
		writeError(w, http.StatusBadRequest, "No logs to troubleshoot")
		return
	}

	advice := s.brain.Advisor().TroubleshootLogs(r.Context(), logs)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "advice": advice})
}

type runView struct {
	ID         string    `json:"id"`
	Phase      string    `json:"phase"`
	Success    bool      `json:"success"`
	ExitCode   int       `json:"exitCode"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
}

type scanView struct {
	ID          string    `json:"id"`
	Repo        string    `json:"repo,omitempty"`
	RepoPath    string    `json:"repoPath,omitempty"`
	Status      string    `json:"status"`
	HealthScore int       `json:"healthScore"`
	Success     bool      `json:"success"`
	Languages   []string  `json:"languages"`
	CI          string    `json:"ci"`
	ScannedAt   time.Time `json:"scannedAt"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "History is disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.history.ListPhaseRuns(r.Context(), r.URL.Query().Get("phase"), limit)
	if err != nil {
		s.log.Error("list phase runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	scans, err := s.history.ListScans(r.Context(), limit)
	if err != nil {
		s.log.Error("list scans", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}

	runViews := make([]runView, 0, len(runs))
	for _, run := range runs {
		runViews = append(runViews, runView{
			ID:         run.ID,
			Phase:      run.Phase,
			Success:    run.Success,
			ExitCode:   run.ExitCode,
			Error:      run.Error,
			StartedAt:  run.StartedAt,
			DurationMs: run.Duration.Milliseconds(),
		})
	}
	scanViews := make([]scanView, 0, len(scans))
	for _, sc := range scans {
		langs := sc.Languages
		if langs == nil {
			langs = []string{}
		}
		scanViews = append(scanViews, scanView{
			ID:          sc.ID,
			Repo:        sc.Repo,
			RepoPath:    sc.RepoPath,
			Status:      sc.Status,
			HealthScore: sc.HealthScore,
			Success:     sc.Success,
			Languages:   langs,
			CI:          sc.CI,
			ScannedAt:   sc.ScannedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "runs": runViews, "scans": scanViews})
}
