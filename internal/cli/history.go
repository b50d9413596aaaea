package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/repobrain/internal/analytics"
	"github.com/lucasnoah/repobrain/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent phase runs and scans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		store, err := a.history()
		if err != nil {
			return err
		}

		phase, _ := cmd.Flags().GetString("phase")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.ListPhaseRuns(cmd.Context(), phase, limit)
		if err != nil {
			return err
		}
		scans, err := store.ListScans(cmd.Context(), limit)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, map[string]any{"runs": runs, "scans": scans})
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 && len(scans) == 0 {
			fmt.Fprintln(out, "No history recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tPHASE\tOK\tEXIT\tDURATION\tERROR")
		for _, r := range runs {
			msg := truncate(r.Error, 50)
			fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\t%s\n",
				r.StartedAt.Local().Format(time.DateTime), r.Phase, r.Success, r.ExitCode,
				r.Duration.Round(time.Millisecond), msg)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if len(scans) > 0 {
			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCANNED\tREPO\tSTATUS\tSCORE\tOK")
			for _, s := range scans {
				repo := s.Repo
				if repo == "" {
					repo = s.RepoPath
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n",
					s.ScannedAt.Local().Format(time.DateTime), repo, s.Status, s.HealthScore, s.Success)
			}
			return w.Flush()
		}
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Per-phase durations and per-repository score trends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		store, err := a.history()
		if err != nil {
			return err
		}

		var since string
		if window, _ := cmd.Flags().GetDuration("since"); window > 0 {
			since = db.FormatTime(time.Now().Add(-window))
		}

		phases, err := analytics.QueryPhaseStats(store, since)
		if err != nil {
			return err
		}
		trends, err := analytics.QueryRepoTrends(store, since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, map[string]any{"phases": phases, "repos": trends})
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PHASE\tRUNS\tSUCCESS%\tAVG(s)\tP50(s)\tP95(s)")
		for _, p := range phases {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\t%.1f\n", p.Phase, p.Count, p.SuccessRate, p.Avg, p.P50, p.P95)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "REPO\tSCANS\tLATEST\tAVG\tMIN\tMAX\tDELTA")
		for _, t := range trends {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%d\t%d\t%+d\n", t.Repo, t.Scans, t.Latest, t.Avg, t.Min, t.Max, t.Delta)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().String("phase", "", "Only show runs of this phase")
	historyCmd.Flags().Int("limit", 20, "Maximum rows of each kind")
	historyCmd.Flags().String("format", "text", "Output format: text or json")

	historyStatsCmd.Flags().Duration("since", 0, "Only include runs newer than this (e.g. 168h)")
	historyStatsCmd.Flags().String("format", "text", "Output format: text or json")

	historyCmd.AddCommand(historyStatsCmd)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
