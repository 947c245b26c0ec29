// Command quizctl is an operational CLI for on-call inspection of live
// sessions: list codes, inspect one in detail, or force-expire it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quizctl",
	Short: "Operational CLI for the quiz session engine",
}

func main() {
	rootCmd.AddCommand(sessionsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
