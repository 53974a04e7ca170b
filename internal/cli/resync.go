package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var resyncCmd = &cobra.Command{
	Use:   "resync [collection]",
	Short: "Replace local data with the backend's copy",
	Long: `Download every mapped collection from the backend and replace the local
copy. Records created locally that have not synced yet are kept. With a
collection argument only that collection is refreshed.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runResync,
}

func runResync(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	if !c.Monitor.IsOnline() {
		exitError("backend %s is not reachable", c.Config.ServerURL)
	}

	ctx := context.Background()
	if len(args) == 1 {
		fmt.Printf("Refreshing %s...\n", args[0])
		if err := c.Engine.RefreshCollection(ctx, args[0]); err != nil {
			exitError("refresh failed: %v", err)
		}
		n, _ := c.Store.Count(args[0])
		fmt.Printf("%s now holds %d record(s)\n", args[0], n)
		return
	}

	fmt.Println("Refreshing all collections...")
	if err := c.Engine.FullResync(ctx); err != nil {
		exitError("resync failed: %v", err)
	}
	for _, col := range c.Store.Collections() {
		n, err := c.Store.Count(col.Name)
		if err != nil {
			continue
		}
		fmt.Printf("  %-18s %5d record(s)\n", col.Name, n)
	}
}
