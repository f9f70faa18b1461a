package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job_id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Put("/api/v1/jobs/"+id+"/cancel", nil)
			if err != nil {
				return fmt.Errorf("cancel job: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			state, _ := data["state"].(string)
			cancelled, _ := data["cancelled"].(bool)

			fmt.Printf("Job %s: %s\n", id, state)
			if !cancelled {
				fmt.Println("  (already terminal, nothing to cancel)")
			}
			return nil
		},
	}
}

func newEvictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evict <job_id>",
		Short: "Remove a finished job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			if _, err := client.Delete("/api/v1/jobs/" + id); err != nil {
				return fmt.Errorf("evict job: %w", err)
			}
			fmt.Printf("Job %s evicted\n", id)
			return nil
		},
	}
}
