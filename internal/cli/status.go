package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Check the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/jobs/" + id)
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			state, _ := data["state"].(string)
			name, _ := data["name"].(string)
			handle, _ := data["handle"].(string)
			attempts, _ := data["attempts"].(float64)

			fmt.Printf("Job: %s\n", id)
			fmt.Printf("  Name:     %s\n", name)
			fmt.Printf("  State:    %s\n", state)
			if handle != "" {
				fmt.Printf("  Handle:   %s\n", handle)
			}
			fmt.Printf("  Attempts: %d\n", int(attempts))

			if payload, ok := data["payload"].(map[string]any); ok {
				if caseDir, ok := payload["case_dir"].(string); ok {
					fmt.Printf("  Case:     %s\n", caseDir)
				}
			}
			if fault, ok := data["fault"].(string); ok && fault != "" {
				fmt.Printf("  Fault:    %s\n", fault)
			}
			if createdAt, ok := data["created_at"].(string); ok {
				fmt.Printf("  Created:  %s\n", createdAt)
			}
			if finishedAt, ok := data["finished_at"].(string); ok && finishedAt != "" {
				fmt.Printf("  Finished: %s\n", finishedAt)
			}

			return nil
		},
	}
}
