package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/artifacts"
)

const (
	// InsightFallback is returned when no insight could be produced.
	InsightFallback = "Unable to sync AI insight."
	// TroubleshootFallback is returned when log troubleshooting fails.
	TroubleshootFallback = "Diagnosis logic failed. Check connectivity."

	proposalBody = "Automated PR to align with MERMEDA v2.2 spec."

	// maxLogLines bounds how much of a log is sent for troubleshooting.
	maxLogLines = 20
)

// RepairProposal is a suggested pull request title and body.
type RepairProposal struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// FallbackProposal is the proposal used when the oracle cannot produce one.
func FallbackProposal(repo string) RepairProposal {
	return RepairProposal{
		Title: fmt.Sprintf("chore: stabilize %s infrastructure", repo),
		Body:  proposalBody,
	}
}

// Advisor wraps an Oracle with prompts, a per-call timeout and fixed
// fallbacks. Its methods never fail.
type Advisor struct {
	oracle  Oracle
	timeout time.Duration
	log     *zap.Logger
}

// New creates an Advisor. A zero timeout means 30s.
func New(oracle Oracle, timeout time.Duration, logger *zap.Logger) *Advisor {
	if oracle == nil {
		oracle = Disabled{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{oracle: oracle, timeout: timeout, log: logger.Named("advisor")}
}

// RepoInsight summarizes a diagnosis for an operator.
func (a *Advisor) RepoInsight(ctx context.Context, d artifacts.DiagnosisRecord) string {
	v := diagnosisVars(d)
	if d.Vulnerabilities != nil {
		v["vulnerabilities"] = strconv.Itoa(*d.Vulnerabilities)
	}
	text, err := a.ask(ctx, insightTemplate, v)
	if err != nil || text == "" {
		a.log.Warn("insight unavailable", zap.Error(err))
		return InsightFallback
	}
	return text
}

// RepairProposal drafts a PR title and body for the diagnosed repository.
func (a *Advisor) RepairProposal(ctx context.Context, d artifacts.DiagnosisRecord, score int) RepairProposal {
	fallback := FallbackProposal(repoLabel(d))

	v := diagnosisVars(d)
	v["score"] = strconv.Itoa(score)
	text, err := a.ask(ctx, proposalTemplate, v)
	if err != nil {
		a.log.Warn("repair proposal unavailable", zap.Error(err))
		return fallback
	}

	var p RepairProposal
	if err := json.Unmarshal([]byte(extractJSON(text)), &p); err != nil {
		a.log.Warn("repair proposal unparsable", zap.Error(err), zap.String("raw", truncate(text, 200)))
		return fallback
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Body = strings.TrimSpace(p.Body)
	if p.Title == "" || p.Body == "" {
		return fallback
	}
	return p
}

// TroubleshootLogs explains the likely cause of a failure from log lines.
func (a *Advisor) TroubleshootLogs(ctx context.Context, logs []string) string {
	if len(logs) > maxLogLines {
		logs = logs[len(logs)-maxLogLines:]
	}
	text, err := a.ask(ctx, troubleshootTemplate, vars{"logs": strings.Join(logs, "\n")})
	if err != nil || text == "" {
		a.log.Warn("troubleshooting unavailable", zap.Error(err))
		return TroubleshootFallback
	}
	return text
}

func (a *Advisor) ask(ctx context.Context, tmpl string, v vars) (string, error) {
	prompt, err := render(tmpl, v)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.oracle.Advise(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func diagnosisVars(d artifacts.DiagnosisRecord) vars {
	langs := "none detected"
	if len(d.Languages) > 0 {
		langs = strings.Join(d.Languages, ", ")
	}
	return vars{
		"repo":            repoLabel(d),
		"status":          string(d.Status),
		"reason":          d.Reason,
		"languages":       langs,
		"framework":       d.Framework,
		"ci":              d.CI,
		"vulnerabilities": "",
	}
}

func repoLabel(d artifacts.DiagnosisRecord) string {
	if d.Repo != "" {
		return d.Repo
	}
	return "repository"
}

// extractJSON returns the outermost {...} span of s, tolerating code fences
// and chatter around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
