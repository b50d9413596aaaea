package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/repobrain/internal/brain"
	"github.com/lucasnoah/repobrain/internal/schedule"
	"github.com/lucasnoah/repobrain/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	Long: `Serve the /api endpoints on server.port (3001 by default; PORT or API_PORT
override it). When schedule.scan is set, scans also run on that cron schedule.
SIGINT or SIGTERM shuts both down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		port := a.cfg.Server.Port
		if p, _ := cmd.Flags().GetInt("port"); p != 0 {
			port = p
		}

		opts := web.Options{
			Port:    port,
			Version: a.cfg.Server.Version,
			Logger:  a.log,
		}
		if a.db != nil {
			opts.History = a.db
		}
		srv := web.NewServer(a.brain, opts)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(ctx) })

		if spec := a.cfg.Schedule.Scan; spec != "" {
			sched, err := schedule.New(spec, a.brain, brain.ScanOptions{}, a.log)
			if err != nil {
				return err
			}
			g.Go(func() error { return sched.Run(ctx) })
		} else {
			a.log.Debug("no scan schedule configured")
		}

		err = g.Wait()
		a.log.Info("shutdown complete", zap.Error(err))
		return err
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
}
