package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repodctl",
	Short: "repodctl is an operator CLI for a repod server",
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "repod server base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("REPODCTL_TOKEN"), "bearer token (defaults to $REPODCTL_TOKEN)")

	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(cleanupCmd)
}
