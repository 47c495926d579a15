package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "expire by-hash objects past their retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")

		c := newClient(server, token)
		if err := c.postJSON("/api/v0/cleanup", nil, nil); err != nil {
			return fmt.Errorf("running cleanup: %w", err)
		}
		fmt.Println("cleanup complete")
		return nil
	},
}
