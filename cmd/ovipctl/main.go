package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the OVIP CLI.
var rootCmd = &cobra.Command{
	Use:   "ovipctl",
	Short: "Oil volatility feature engineering tools",
	Long: `ovipctl runs the leakage-safe feature pipeline offline: it engineers
features from a panel CSV directory or a synthetic panel, reports feature-set
validation against the training cutoff and writes the engineered columns.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
