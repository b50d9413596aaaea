package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/repobrain/internal/artifacts"
	"github.com/lucasnoah/repobrain/internal/brain"
	"github.com/lucasnoah/repobrain/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-score the diagnosis whenever the pipeline rewrites it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		onChange := func(d *brain.ScoredDiagnosis, err error) {
			switch {
			case err == nil:
				fmt.Fprintf(out, "%s  score %d/100  %s\n", d.Status, d.HealthScore, d.Reason)
			case errors.Is(err, artifacts.ErrInvalid):
				fmt.Fprintf(out, "diagnosis invalid: %v\n", err)
			}
		}

		debounce, _ := cmd.Flags().GetDuration("debounce")
		w, err := watch.New(a.brain.Executor().ControlDir(), a.brain, onChange, debounce, a.log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before re-reading the diagnosis")
}
