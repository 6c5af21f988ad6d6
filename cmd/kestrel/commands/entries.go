// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newEntriesCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List the expanded matrix entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := loadPipeline()
			if err != nil {
				return err
			}

			entries := p.Entries()

			if jsonOut {
				ids := make([]string, 0, len(entries))
				for _, e := range entries {
					ids = append(ids, e.ID)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"entries": ids})
			}

			for _, e := range entries {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), e.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output results in JSON")
	cmd.Flags().StringVar(&runPipeline, "pipeline", "", "Path to the pipeline file (default: discover kestrel.yaml upward)")
	return cmd
}
