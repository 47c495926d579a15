package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check REPOSITORY DISTRIBUTION",
	Short: "run the consistency checker against a repository's distribution",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")
		repo, dist := args[0], args[1]

		c := newClient(server, token)
		var result struct {
			Inconsistencies []map[string]string `json:"inconsistent_objects"`
		}
		path := fmt.Sprintf("/api/v0/repositories/%s/distributions/%s/sync", url.PathEscape(repo), url.PathEscape(dist))
		if err := c.getJSON(path, &result); err != nil {
			return fmt.Errorf("running consistency check: %w", err)
		}

		if len(result.Inconsistencies) == 0 {
			fmt.Println("no inconsistencies found")
			return nil
		}
		for _, obj := range result.Inconsistencies {
			fmt.Printf("%s  kind=%s  problem=%s  expected=%s  actual=%s\n",
				obj["Key"], obj["Kind"], obj["Problem"], obj["Expected"], obj["Actual"])
		}
		return nil
	},
}
