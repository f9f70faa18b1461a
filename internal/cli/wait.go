package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

func newWaitCmd() *cobra.Command {
	var flagTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait <job_id>",
		Short: "Block until a job finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			path := fmt.Sprintf("/api/v1/jobs/%s/wait?timeout=%s", id, url.QueryEscape(flagTimeout.String()))
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("wait for job: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			state, _ := data["state"].(string)
			fmt.Printf("Job %s: %s\n", id, state)
			if fault, ok := data["fault"].(string); ok && fault != "" {
				fmt.Printf("  Fault: %s\n", fault)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "How long to wait before giving up")
	return cmd
}
