package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thisai/billsync/internal/models"
	"github.com/thisai/billsync/internal/offline"
)

var lsCmd = &cobra.Command{
	Use:   "ls <collection>",
	Short: "List local records of a collection",
	Long: `List the local copy of a collection. With --refresh the collection is
pulled from the backend first when it is reachable; if the pull fails the
local copy is shown anyway.`,
	Args: cobra.ExactArgs(1),
	Run:  runLs,
}

var (
	lsRefresh bool
	lsJSON    bool
)

func init() {
	lsCmd.Flags().BoolVar(&lsRefresh, "refresh", false, "Pull from the backend before listing")
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "Print full records as JSON")
}

func runLs(cmd *cobra.Command, args []string) {
	collection := args[0]
	c := initFullContext()
	defer c.Close()

	f := offline.New(c.Store, c.Monitor, c.Engine, nil)
	recs, err := f.GetAll(context.Background(), collection, lsRefresh)
	if err != nil {
		exitError("list failed: %v", err)
	}

	if lsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(recs); err != nil {
			exitError("encode failed: %v", err)
		}
		return
	}

	yellow := color.New(color.FgYellow)
	for _, rec := range recs {
		fmt.Printf("%-28s modified %s", rec.ID(), rec.LastModified().Format("2006-01-02 15:04:05"))
		if models.IsLocalID(rec.ID()) {
			yellow.Printf("  not yet synced")
		}
		fmt.Println()
	}
	fmt.Printf("\n%d record(s)\n", len(recs))
}
