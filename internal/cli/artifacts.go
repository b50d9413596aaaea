package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/repobrain/internal/artifacts"
)

var diagnosisCmd = &cobra.Command{
	Use:   "diagnosis",
	Short: "Print the current diagnosis with its health score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		d, err := a.brain.Diagnosis()
		if err != nil {
			return err
		}
		return writeJSON(cmd, d)
	},
}

var detectionCmd = &cobra.Command{
	Use:   "detection",
	Short: "Print the current detection record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		d, err := a.brain.Reader().Detection()
		if err != nil {
			return err
		}
		return writeJSON(cmd, d)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the latest autopsy log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		w := cmd.OutOrStdout()
		name, lines, err := a.brain.Reader().LatestLog()
		if errors.Is(err, artifacts.ErrNotFound) {
			fmt.Fprintln(w, "No logs available")
			return nil
		}
		if err != nil {
			return err
		}

		if tail, _ := cmd.Flags().GetInt("tail"); tail > 0 && len(lines) > tail {
			lines = lines[len(lines)-tail:]
		}
		fmt.Fprintf(w, "==> %s <==\n", name)
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().Int("tail", 0, "Only print the last N lines")
}
