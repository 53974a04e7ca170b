// Package cli implements the command-line interface for billsync.
package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thisai/billsync/internal/config"
	"github.com/thisai/billsync/internal/core"
	"github.com/thisai/billsync/internal/models"
	"github.com/thisai/billsync/internal/netmon"
	"github.com/thisai/billsync/internal/remote"
	"github.com/thisai/billsync/internal/status"
	"github.com/thisai/billsync/internal/store"
)

// cmdContext holds common resources for CLI commands.
type cmdContext struct {
	Config  *config.Config
	Store   *store.Store
	Backend remote.Backend
	Monitor *netmon.Monitor
	Status  *status.Broadcaster
	Engine  *core.Engine
}

// Close releases resources held by cmdContext.
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext initializes config and the local store (no network).
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.DatabasePath(), store.DefaultCollections())
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	return &cmdContext{Config: cfg, Store: st}
}

// initFullContext additionally wires the backend client, a network monitor
// primed by one reachability probe, and the sync engine.
func initFullContext() *cmdContext {
	c := initContext()

	c.Backend = remote.NewRetryClient(remote.NewHTTPClient(c.Config.ServerURL, c.Config.APIToken), nil)
	c.Monitor = netmon.New(probeOnce(c.Config.ServerURL))
	c.Status = status.NewBroadcaster(initialStatus(c))
	c.Engine = core.NewEngine(c.Store, c.Backend, c.Monitor, c.Status, core.Options{
		Mapping:    mappingFor(c.Config),
		Interval:   c.Config.SyncInterval(),
		MaxRetries: c.Config.MaxRetries,
	})

	return c
}

// rebuildEngine swaps in a different logger, for the daemon's rotating log.
func (c *cmdContext) rebuildEngine(logger *slog.Logger) *core.Engine {
	c.Engine = core.NewEngine(c.Store, c.Backend, c.Monitor, c.Status, core.Options{
		Mapping:    mappingFor(c.Config),
		Interval:   c.Config.SyncInterval(),
		MaxRetries: c.Config.MaxRetries,
		Logger:     logger,
	})
	return c.Engine
}

func initialStatus(c *cmdContext) models.SyncStatus {
	s := models.SyncStatus{IsOnline: c.Monitor.IsOnline()}
	if counts, err := c.Store.OperationCounts(); err == nil {
		s.PendingCount = counts.Total
	}
	return s
}

// mappingFor returns the configured collection mapping, or the defaults.
func mappingFor(cfg *config.Config) map[string]string {
	if len(cfg.Collections) > 0 {
		return cfg.Collections
	}
	return core.DefaultMapping()
}

// probeOnce checks the backend health endpoint a single time.
func probeOnce(serverURL string) bool {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

var rootCmd = &cobra.Command{
	Use:   "billsync",
	Short: "Offline-first sync for business records",
	Long: `billsync keeps a local, durable copy of your business records (invoices,
purchases, parties, items and more), queues every change made while offline,
and replays the queue against the backend as soon as a connection is
available.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(importCmd)
}

// exitError prints an error and exits.
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns the first 12 characters of an id.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
