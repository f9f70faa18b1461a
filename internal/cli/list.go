package cli

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var flagState string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/jobs"
			if flagState != "" {
				path += "?state=" + url.QueryEscape(flagState)
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			fmt.Printf("%-42s  %-10s  %-24s  %s\n", "ID", "STATE", "NAME", "CREATED")
			fmt.Printf("%-42s  %-10s  %-24s  %s\n", "----", "-----", "----", "-------")
			for _, job := range data {
				id, _ := job["id"].(string)
				state, _ := job["state"].(string)
				name, _ := job["name"].(string)
				createdAt, _ := job["created_at"].(string)
				fmt.Printf("%-42s  %-10s  %-24s  %s\n", id, state, name, createdAt)
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Printf("\n(%d of %d shown)\n", len(data), resp.Pagination.Total)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flagState, "state", "", "Filter by state (PENDING, SUBMITTED, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	return cmd
}
