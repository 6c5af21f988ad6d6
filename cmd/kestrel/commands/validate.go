// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline file for schema and invariant errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, root, err := loadPipeline()
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"valid":   true,
					"root":    root,
					"entries": len(p.Entries()),
				})
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d matrix entries)\n", root, len(p.Entries()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output results in JSON")
	cmd.Flags().StringVar(&runPipeline, "pipeline", "", "Path to the pipeline file (default: discover kestrel.yaml upward)")
	return cmd
}
