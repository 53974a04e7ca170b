package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thisai/billsync/internal/logging"
	"github.com/thisai/billsync/internal/netmon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync engine in the foreground: probe backend reachability, sync
queued changes as soon as the backend comes up, and wake periodically while
work is queued. Logs rotate under .billsync/logs/.

Stop with SIGINT or SIGTERM.`,
	Run: runDaemon,
}

var daemonLogLevel string

func init() {
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
}

func runDaemon(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	logger, closer := logging.NewRotating(c.Config.LogsPath(), logging.ParseLevel(daemonLogLevel))
	defer closer.Close()

	// Rebuild the engine with the rotating logger.
	engine := c.rebuildEngine(logger)

	prober := netmon.NewProber(c.Monitor, c.Config.ServerURL+"/healthz", c.Config.ProbeInterval(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("daemon started", "server", c.Config.ServerURL, "interval", c.Config.SyncInterval().String())
	fmt.Println("billsync daemon running, ctrl-c to stop")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { prober.Run(ctx); return nil })
	g.Go(func() error { return engine.Start(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		exitError("daemon stopped: %v", err)
	}
	logger.Info("daemon stopped")
	fmt.Println("stopped")
}
