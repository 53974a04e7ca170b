// Command billsync is the offline-first sync CLI.
package main

import (
	"os"

	"github.com/thisai/billsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
