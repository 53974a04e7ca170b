package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <sqlite-file>",
	Short: "Import records from a legacy SQLite database",
	Long: `Import records from the legacy SQLite export format (a "records" table
with collection, id and data columns). Rows from unknown collections are
skipped. Imported records keep their ids; records with locally minted ids
are queued for sync like any other local creation would be.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func runImport(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	imported, err := c.Store.ImportLegacy(args[0])
	if err != nil {
		exitError("import failed: %v", err)
	}

	collections := make([]string, 0, len(imported))
	total := 0
	for name, n := range imported {
		collections = append(collections, name)
		total += n
	}
	sort.Strings(collections)

	for _, name := range collections {
		fmt.Printf("  %-18s %5d record(s)\n", name, imported[name])
	}
	fmt.Printf("\nimported %d record(s) from %s\n", total, args[0])
}
