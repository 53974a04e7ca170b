package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and queue status",
	Long:  `Show backend reachability, queued changes, and when each collection was last refreshed.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if c.Monitor.IsOnline() {
		green.Printf("online")
		fmt.Printf("  %s\n", c.Config.ServerURL)
	} else {
		red.Printf("offline")
		fmt.Printf("  %s\n", c.Config.ServerURL)
	}

	counts, err := c.Store.OperationCounts()
	if err != nil {
		exitError("failed to read queue: %v", err)
	}

	fmt.Println()
	if counts.Total == 0 {
		fmt.Println("Queue empty, everything synced")
	} else {
		if counts.Pending > 0 {
			yellow.Printf("%d pending", counts.Pending)
			fmt.Println(" change(s) waiting to sync")
		}
		if counts.Failed > 0 {
			red.Printf("%d failed", counts.Failed)
			fmt.Println(" change(s) will be retried")
		}
	}

	fmt.Println()
	for _, col := range c.Store.Collections() {
		n, err := c.Store.Count(col.Name)
		if err != nil {
			continue
		}
		line := fmt.Sprintf("  %-18s %5d record(s)", col.Name, n)
		if meta, ok, err := c.Store.GetCacheMeta(col.Name); err == nil && ok {
			line += fmt.Sprintf("   last refresh %s", meta.LastSync.Format("2006-01-02 15:04:05"))
		}
		fmt.Println(line)
	}
}
