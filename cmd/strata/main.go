// Package main implements the strata command line tool for inspecting,
// exporting and priming layered configuration against a running database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "strata manages layered configuration",
	Long: "strata inspects, exports and primes layered configuration.\n" +
		"All commands read the same configuration as the server\n" +
		"(config.yaml or STRATA_* environment variables).",
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			return
		}
	},
}

func init() {
	rootCmd.AddCommand(ListCmd())
	rootCmd.AddCommand(ExportCmd())
	rootCmd.AddCommand(PrimeCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
