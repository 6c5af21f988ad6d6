// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kestrel-ci/kestrel/cmd/kestrel/internal/clierr"
	"github.com/kestrel-ci/kestrel/internal/coverage"
	"github.com/kestrel-ci/kestrel/internal/engine"
	"github.com/kestrel-ci/kestrel/internal/notify"
	"github.com/kestrel-ci/kestrel/internal/pipeline"
	"github.com/kestrel-ci/kestrel/internal/source"
	"github.com/kestrel-ci/kestrel/internal/steps"
)

var (
	runJSON        bool
	runPipeline    string
	runStateDir    string
	runSerial      bool
	runMaxParallel int
	runAllOS       bool
	runNoNotify    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pipeline for every matrix entry",
	Long: `Run the pipeline declared in kestrel.yaml: provision one isolated
workspace per matrix entry, install dependency manifests in order, run
the test command, upload coverage for passing entries and send outcome
notifications. State lives under .kestrel/run to allow resuming
failures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd.Context(), false)
	},
}

func init() {
	runCmd.PersistentFlags().BoolVar(&runJSON, "json", false, "Output results in JSON")
	runCmd.PersistentFlags().StringVar(&runPipeline, "pipeline", "", "Path to the pipeline file (default: discover kestrel.yaml upward)")
	runCmd.PersistentFlags().StringVar(&runStateDir, "state-dir", filepath.Join(".kestrel", "run"), "Directory to store run state")
	runCmd.Flags().BoolVar(&runSerial, "serial", false, "Run matrix entries in declaration order instead of in parallel")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Bound on concurrently running entries (0 = unbounded)")
	runCmd.Flags().BoolVar(&runAllOS, "all-os", false, "Run entries regardless of the host operating system")
	runCmd.PersistentFlags().BoolVar(&runNoNotify, "no-notify", false, "Suppress outcome notifications")

	runCmd.AddCommand(runResumeCmd)
	runCmd.AddCommand(runReportCmd)
	runCmd.AddCommand(runResetCmd)
}

// GetRunCmd exposes the command to the root command.
func GetRunCmd() *cobra.Command {
	return runCmd
}

// loadPipeline resolves and loads the pipeline file, returning the
// pipeline and the project root (the file's directory).
func loadPipeline() (*pipeline.Pipeline, string, error) {
	path := runPipeline
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		path, err = pipeline.Discover(wd)
		if err != nil {
			return nil, "", clierr.Wrap(clierr.CodeConfig, "resolving pipeline", err)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}

	p, err := pipeline.Load(abs)
	if err != nil {
		return nil, "", clierr.Wrap(clierr.CodeConfig, "invalid pipeline", err)
	}
	return p, filepath.Dir(abs), nil
}

func resolveStateStore(projectRoot string) *engine.StateStore {
	stateDir := runStateDir
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(projectRoot, stateDir)
	}
	return engine.NewStateStore(stateDir)
}

func executeRun(ctx context.Context, resume bool) error {
	p, projectRoot, err := loadPipeline()
	if err != nil {
		return err
	}

	store := resolveStateStore(projectRoot)
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "kestrel",
	})

	var uploader engine.CoverageUploader
	if p.Coverage.Enabled {
		uploader = coverage.NewClient(p.Coverage.URL, os.Getenv(p.Coverage.TokenEnv))
	}

	base := &engine.Deps{
		ProjectRoot: projectRoot,
		Exec:        engine.NewExecRunner(),
		Uploader:    uploader,
		Logger:      logger,
	}
	eng := engine.New(steps.ForPipeline(p), store, base, source.New(projectRoot), engine.Options{
		Serial:      runSerial,
		MaxParallel: runMaxParallel,
		AllOS:       runAllOS,
	})

	// The previous summary feeds the "on change" notification policy,
	// so it must be read before the run overwrites it.
	prev, err := store.ReadLastRun()
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "reading previous run", err)
	}

	var last *engine.LastRun
	if resume {
		last, err = eng.Resume(ctx, p.Entries())
		if err == nil && last == nil {
			fmt.Println("No failed entries to resume.")
			return nil
		}
	} else {
		last, err = eng.Run(ctx, p.Entries())
	}
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "run aborted", err)
	}

	if !runNoNotify && p.Notifications.Email != nil {
		addr := p.Notifications.Email.SMTPAddr
		if addr == "" {
			addr = "localhost:25"
		}
		notifier := notify.New(p.Notifications.Email, notify.NewSMTPMailer(addr))
		if sent, nerr := notifier.Notify(ctx, prev, last); nerr != nil {
			logger.Warn("notification failed", "err", nerr)
		} else if sent {
			logger.Info("notification sent", "to", p.Notifications.Email.Recipient)
		}
	}

	if err := printSummary(last); err != nil {
		return err
	}

	if !last.Passed() {
		return clierr.Newf(clierr.CodePipeline, "run failed: %s", strings.Join(last.Failed, ", "))
	}
	return nil
}

func printSummary(last *engine.LastRun) error {
	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(last)
	}

	fmt.Printf("Run %s: %s\n", last.ID, last.Status)
	for _, id := range last.Entries {
		mark := "PASS"
		for _, f := range last.Failed {
			if f == id {
				mark = "FAIL"
			}
		}
		fmt.Printf("  %-24s %s\n", id, mark)
	}
	return nil
}

var runResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Re-run only the matrix entries that failed last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd.Context(), true)
	},
}

var runResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear run state and workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, projectRoot, err := loadPipeline()
		if err != nil {
			return err
		}
		return resolveStateStore(projectRoot).Reset()
	},
}

var runReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the last run summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, projectRoot, err := loadPipeline()
		if err != nil {
			return err
		}
		store := resolveStateStore(projectRoot)

		last, err := store.ReadLastRun()
		if err != nil {
			return clierr.Wrap(clierr.CodeInternal, "reading last run", err)
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(last)
		}

		if last == nil {
			fmt.Println("No run state found.")
			return nil
		}

		fmt.Printf("Status: %s\n", last.Status)
		if len(last.Failed) > 0 {
			fmt.Println("Failed:")
			for _, f := range last.Failed {
				fmt.Printf("  - %s\n", f)
			}
		} else {
			fmt.Println("All entries passed.")
		}
		return nil
	},
}
