// Kapsel — sandboxed execution of untrusted python and bash code.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kapsel",
	Short: "Kapsel — sandboxed execution of untrusted python and bash code.",
	Long: `Kapsel runs untrusted code inside resource-limited Docker containers.
It serves newline-delimited JSON requests on stdin/stdout, either as a
long-lived worker or one request at a time, and can expose the same
capability as a Model Context Protocol tool.`,
	RunE:          runWorker, // Default to worker mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(workerCmd, runCmd, poolCmd, mcpCmd, historyCmd, prebuildCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
