package brain

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/advisor"
	"github.com/lucasnoah/repobrain/internal/artifacts"
	"github.com/lucasnoah/repobrain/internal/health"
)

var (
	repoNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+(/[A-Za-z0-9._-]+)?$`)
	prURLRe    = regexp.MustCompile(`https://github\.com/\S+`)
)

// RepairResult is the outcome of a repair PR request.
type RepairResult struct {
	Success  bool                    `json:"success"`
	PRURL    string                  `json:"prUrl,omitempty"`
	Proposal *advisor.RepairProposal `json:"proposal,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Logs     []string                `json:"logs,omitempty"`
}

// ValidateRepoName checks name is "repo" or "owner/repo".
func ValidateRepoName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrRepoNameRequired
	}
	if !repoNameRe.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidRepoName, name)
	}
	return nil
}

// CreateRepairPR drafts a proposal for repoName and runs the auto-pr phase
// with it. The PR URL is taken from the script output; scripts that do not
// print one get a placeholder URL.
func (o *Orchestrator) CreateRepairPR(ctx context.Context, repoName string) (*RepairResult, error) {
	if err := ValidateRepoName(repoName); err != nil {
		return nil, err
	}
	repoName = strings.TrimSpace(repoName)

	d := artifacts.DiagnosisRecord{Repo: repoName, CI: artifacts.CINone}
	if cur, err := o.reader.Diagnosis(); err == nil {
		d = *cur
		if d.Repo == "" {
			d.Repo = repoName
		}
	}
	proposal := o.advisor.RepairProposal(ctx, d, health.Score(d))

	res := o.exec.RunPhaseEnv(ctx, PhaseAutoPR, map[string]string{
		"REPO_NAME": repoName,
		"PR_TITLE":  proposal.Title,
		"PR_BODY":   proposal.Body,
	})
	if !res.Success {
		o.log.Warn("repair PR failed", zap.String("repo", repoName), zap.String("error", res.Error))
		return &RepairResult{Success: false, Error: res.Error, Logs: res.Logs}, nil
	}

	url := findPRURL(res.Logs)
	if url == "" {
		url = placeholderPRURL(repoName)
	}
	o.log.Info("repair PR created", zap.String("repo", repoName), zap.String("url", url))
	return &RepairResult{Success: true, PRURL: url, Proposal: &proposal, Logs: res.Logs}, nil
}

func findPRURL(lines []string) string {
	for _, l := range lines {
		if m := prURLRe.FindString(l); m != "" {
			return m
		}
	}
	return ""
}

func placeholderPRURL(repo string) string {
	if strings.Contains(repo, "/") {
		return fmt.Sprintf("https://github.com/%s/pull/1", repo)
	}
	return fmt.Sprintf("https://github.com/org/%s/pull/1", repo)
}
