package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/repobrain/internal/brain"
)

var phaseCmd = &cobra.Command{
	Use:   "phase <name>",
	Short: "Run one phase script (brain.<name>.sh)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		return printResult(cmd, args[0], a.brain.RunPhase(cmd.Context(), args[0]))
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline (brain.run.sh)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		return printResult(cmd, "pipeline", a.brain.RunFull(cmd.Context()))
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run detect and diagnose, then print the scored diagnosis",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		var prev *brain.ScanRecord
		if a.db != nil {
			if prev, err = a.db.LatestScan(cmd.Context()); err != nil {
				a.log.Warn("read previous scan", zap.Error(err))
			}
		}

		repoPath, _ := cmd.Flags().GetString("repo")
		report, err := a.brain.Scan(cmd.Context(), brain.ScanOptions{RepoPath: repoPath})
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, map[string]any{
				"success":         true,
				"pipelineSuccess": report.Success,
				"data":            report.ScoredDiagnosis,
				"logs":            report.Logs(),
			})
		}

		w := cmd.OutOrStdout()
		for _, line := range report.Logs() {
			fmt.Fprintf(w, "  %s\n", line)
		}
		repo := report.Repo
		if repo == "" {
			repo = "(unnamed)"
		}
		fmt.Fprintf(w, "%s  %s  score %d/100", repo, report.Status, report.HealthScore)
		if prev != nil {
			fmt.Fprintf(w, "  (%+d since %s)", report.HealthScore-prev.HealthScore, prev.ScannedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintln(w)
		if report.Reason != "" {
			fmt.Fprintf(w, "  %s\n", report.Reason)
		}
		if !report.Success {
			return fmt.Errorf("diagnose phase failed; diagnosis may be stale")
		}
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair <owner/repo>",
	Short: "Open a repair pull request via brain.auto-pr.sh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.brain.CreateRepairPR(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := writeJSON(cmd, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("repair PR failed: %s", res.Error)
		}
		return nil
	},
}

// printResult prints a phase result and turns failure into an error so the
// process exits non-zero.
func printResult(cmd *cobra.Command, label string, res brain.ExecutionResult) error {
	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		if err := writeJSON(cmd, res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(res.Logs, "\n"))
	}
	if !res.Success {
		if res.Error != "" {
			return fmt.Errorf("%s", res.Error)
		}
		return fmt.Errorf("phase %s failed (exit %d)", label, res.ExitCode)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	phaseCmd.Flags().String("format", "text", "Output format: text or json")
	runCmd.Flags().String("format", "text", "Output format: text or json")
	scanCmd.Flags().String("format", "text", "Output format: text or json")
	scanCmd.Flags().String("repo", "", "Repository directory to scan (passed as REPO_BRAIN_TARGET)")
}
