package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		flagScript    string
		flagArgs      []string
		flagResources []string
	)

	cmd := &cobra.Command{
		Use:   "submit <case_dir>",
		Short: "Register a simulation case for scheduling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseDir, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve case directory: %w", err)
			}
			if info, err := os.Stat(caseDir); err != nil || !info.IsDir() {
				return fmt.Errorf("case directory %s does not exist", caseDir)
			}

			scriptArgs, err := parseKeyValues(flagArgs)
			if err != nil {
				return err
			}
			resources, err := parseKeyValues(flagResources)
			if err != nil {
				return err
			}

			resp, err := client.Post("/api/v1/jobs", map[string]any{
				"case_dir":  caseDir,
				"script":    flagScript,
				"args":      scriptArgs,
				"resources": resources,
			})
			if err != nil {
				return fmt.Errorf("submit job: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			id, _ := data["id"].(string)
			name, _ := data["name"].(string)
			fmt.Printf("Job registered: %s\n", id)
			fmt.Printf("  Name:  %s\n", name)
			fmt.Printf("  Case:  %s\n", caseDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagScript, "script", "", "Submission script relative to the case directory (default Allrun)")
	cmd.Flags().StringArrayVar(&flagArgs, "arg", nil, "Script argument as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&flagResources, "resource", nil, "Scheduler resource request as key=value (repeatable)")
	return cmd
}

// parseKeyValues converts repeated key=value flags to a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[k] = v
	}
	return out, nil
}
