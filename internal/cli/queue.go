package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thisai/billsync/internal/models"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List queued changes",
	Long:  `List every change waiting to sync, oldest first.`,
	Run:   runQueue,
}

func runQueue(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	ops, err := c.Store.PendingOperations()
	if err != nil {
		exitError("failed to read queue: %v", err)
	}
	if len(ops) == 0 {
		fmt.Println("Queue empty")
		return
	}

	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	for _, op := range ops {
		ts := op.Timestamp.Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %s  %-6s %-18s %s", shortID(op.ID), ts, op.Action, op.Store, shortID(op.Data.ID()))
		if op.Status == models.OpFailed {
			red.Printf("  failed (%d attempts)", op.RetryCount)
		} else if op.RetryCount > 0 {
			yellow.Printf("  retried %d time(s)", op.RetryCount)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d change(s) queued\n", len(ops))
}
