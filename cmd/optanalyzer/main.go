// Command optanalyzer analyses stored option chain snapshots.
package main

import (
	"os"

	"github.com/fatih/color"

	"options-analyzer/internal/cli"

	// Market timezones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
