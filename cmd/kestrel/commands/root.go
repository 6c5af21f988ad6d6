// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Kestrel - Kestrel is a local continuous-integration matrix runner.
It expands a declared build matrix into isolated per-entry workspaces,
installs dependency manifests in order, runs the test command, uploads
coverage for passing entries and sends outcome notifications.
*/

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd constructs the kestrel root Cobra command.
func NewRootCmd() *cobra.Command {
	version := os.Getenv("KESTREL_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "kestrel",
		Short:         "Kestrel - local CI matrix runner",
		Long:          "Kestrel runs a declarative CI pipeline (kestrel.yaml) on the local machine: matrix expansion, dependency installation, tests, coverage upload and outcome notifications.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of Kestrel",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Kestrel version %s\n", version)
		},
	})

	cmd.AddCommand(GetRunCmd())
	cmd.AddCommand(newEntriesCmd())
	cmd.AddCommand(newValidateCmd())

	return cmd
}
