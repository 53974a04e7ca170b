package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thisai/billsync/internal/offline"
)

var rmCmd = &cobra.Command{
	Use:   "rm <collection> <id>",
	Short: "Delete a record",
	Long: `Delete a record locally and queue the backend delete. Records that never
synced are simply removed.`,
	Args: cobra.ExactArgs(2),
	Run:  runRm,
}

func runRm(cmd *cobra.Command, args []string) {
	collection, id := args[0], args[1]

	c := initFullContext()
	defer c.Close()

	f := offline.New(c.Store, c.Monitor, c.Engine, nil)
	if err := f.Delete(collection, id); err != nil {
		exitError("delete failed: %v", err)
	}

	if c.Monitor.IsOnline() {
		if err := c.Engine.SyncNow(context.Background()); err != nil {
			fmt.Printf("warning: deleted locally, sync failed: %v\n", err)
		}
	}

	fmt.Printf("deleted %s/%s\n", collection, id)
}
