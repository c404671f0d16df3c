package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solenne/vesper/logger"
	"github.com/solenne/vesper/sched"
)

// ServeCmd runs the scheduler daemon
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon",
	Long: `Run the scheduler daemon.

The daemon sweeps the job store on a fixed cadence, executing every job
whose next run time has passed, and watches the command whitelist file
for live edits. Stop with SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer logger.Cleanup()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ticker := sched.NewTickerWithContext(ctx, rt.runner, rt.store,
		sched.TickerConfig{Interval: rt.cfg.Scheduler.TickInterval}, rt.log)
	ticker.Start()

	// Whitelist edits take effect without a restart
	go func() {
		if err := rt.whitelist.Watch(ctx); err != nil {
			rt.log.Warnw("Whitelist watcher stopped", "error", err)
		}
	}()

	rt.log.Infow("Vesper scheduler running",
		"database", rt.cfg.Database.Path,
		"tick_interval", rt.cfg.Scheduler.TickInterval,
		"stale_after", rt.cfg.Scheduler.StaleAfter)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig

	rt.log.Infow("Shutting down", "signal", s.String())
	cancel()
	ticker.Stop()
	return nil
}
