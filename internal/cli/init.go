package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thisai/billsync/internal/config"
	"github.com/thisai/billsync/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new billsync workspace",
	Long: `Initialize a new billsync workspace in the current directory.
This creates a .billsync directory holding the configuration, the local
database and daemon logs.`,
	Run: runInit,
}

var (
	initServerURL string
	initAPIToken  string
)

func init() {
	initCmd.Flags().StringVar(&initServerURL, "server", "http://localhost:8780", "Backend server URL")
	initCmd.Flags().StringVar(&initAPIToken, "token", "", "Backend API token")
}

func runInit(cmd *cobra.Command, args []string) {
	if _, err := config.FindRoot(); err == nil {
		exitError("billsync workspace already exists")
	}

	fmt.Printf("Initializing billsync workspace...\n")
	fmt.Printf("Backend URL: %s\n", initServerURL)

	cfg, err := config.Initialize(initServerURL, initAPIToken)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	st, err := store.New(cfg.DatabasePath(), store.DefaultCollections())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	fmt.Printf("\nInitialized billsync workspace in .billsync/\n")
	if probeOnce(initServerURL) {
		fmt.Printf("Backend reachable at %s\n", initServerURL)
	} else {
		fmt.Printf("Backend not reachable yet; changes will queue locally\n")
	}
}
