package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued changes to the backend",
	Long:  `Run one sync pass: replay every queued change against the backend in the order it was made.`,
	Run:   runSync,
}

func runSync(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	if !c.Monitor.IsOnline() {
		exitError("backend %s is not reachable", c.Config.ServerURL)
	}

	before, err := c.Store.OperationCounts()
	if err != nil {
		exitError("failed to read queue: %v", err)
	}
	if before.Total == 0 {
		fmt.Println("Queue empty, nothing to sync")
		return
	}

	fmt.Printf("Syncing %d change(s)...\n", before.Total)
	if err := c.Engine.SyncNow(context.Background()); err != nil {
		exitError("sync failed: %v", err)
	}

	after, err := c.Store.OperationCounts()
	if err != nil {
		exitError("failed to read queue: %v", err)
	}

	synced := before.Total - after.Total
	color.New(color.FgGreen).Printf("%d synced", synced)
	if after.Total > 0 {
		fmt.Printf(", ")
		color.New(color.FgYellow).Printf("%d remaining", after.Total)
	}
	fmt.Println()

	if msg := c.Status.Current().Error; msg != "" {
		color.New(color.FgRed).Printf("warning: %s\n", msg)
	}
}
