// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-ci/kestrel/internal/pipeline"
)

// Options tunes how a run schedules its matrix entries.
type Options struct {
	// Serial forces declaration-order execution of entries.
	Serial bool

	// MaxParallel bounds concurrent entries; 0 means unbounded.
	MaxParallel int

	// AllOS runs entries regardless of the host operating system.
	AllOS bool

	// HostOS overrides runtime.GOOS, for tests.
	HostOS string
}

// Engine runs the steps of each matrix entry and persists results.
// Entries are independent of each other; steps within an entry run
// strictly in order and an entry stops at its first failing step.
type Engine struct {
	steps       []Step
	store       *StateStore
	base        *Deps
	provisioner Provisioner
	opts        Options
	logger      *log.Logger
}

// New creates an Engine. base carries the per-run dependencies shared
// by all entries; per-entry fields (Workspace, Entry, Env) are filled
// in by the engine. provisioner may be nil, in which case entries get
// an empty workspace directory.
func New(steps []Step, store *StateStore, base *Deps, provisioner Provisioner, opts Options) *Engine {
	logger := base.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	if opts.HostOS == "" {
		opts.HostOS = runtime.GOOS
	}
	return &Engine{
		steps:       steps,
		store:       store,
		base:        base,
		provisioner: provisioner,
		opts:        opts,
		logger:      logger,
	}
}

// Run executes the given entries and writes a new run summary.
// A failing entry does not stop the others; the summary's Status is
// "fail" if any entry failed.
func (e *Engine) Run(ctx context.Context, entries []pipeline.Entry) (*LastRun, error) {
	release, err := e.store.Lock()
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now().UTC()
	results := make([]EntryResult, len(entries))

	if e.opts.Serial {
		for i, entry := range entries {
			results[i] = e.runEntry(ctx, entry)
		}
	} else {
		var g errgroup.Group
		if e.opts.MaxParallel > 0 {
			g.SetLimit(e.opts.MaxParallel)
		}
		for i, entry := range entries {
			i, entry := i, entry
			g.Go(func() error {
				results[i] = e.runEntry(ctx, entry)
				return nil
			})
		}
		_ = g.Wait()
	}

	last := LastRun{
		ID:         uuid.NewString(),
		Status:     string(StatusPass),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	for _, res := range results {
		last.Entries = append(last.Entries, res.Entry)
		if err := e.store.WriteEntryResult(res); err != nil {
			return nil, fmt.Errorf("writing result for %s: %w", res.Entry, err)
		}
		if res.Status == StatusFail {
			last.Failed = append(last.Failed, res.Entry)
			last.Status = string(StatusFail)
		}
	}

	if err := e.store.WriteLastRun(last); err != nil {
		return nil, fmt.Errorf("writing last run: %w", err)
	}
	return &last, nil
}

// Resume re-runs only the entries that failed in the previous run.
// With nothing to resume it returns (nil, nil).
func (e *Engine) Resume(ctx context.Context, entries []pipeline.Entry) (*LastRun, error) {
	failed, err := e.store.FailedEntries()
	if err != nil {
		return nil, fmt.Errorf("loading failed entries: %w", err)
	}
	if len(failed) == 0 {
		return nil, nil
	}

	wanted := make(map[string]bool, len(failed))
	for _, id := range failed {
		wanted[id] = true
	}

	var toRun []pipeline.Entry
	for _, entry := range entries {
		if wanted[entry.ID] {
			toRun = append(toRun, entry)
		}
	}
	return e.Run(ctx, toRun)
}

func (e *Engine) runEntry(ctx context.Context, entry pipeline.Entry) EntryResult {
	logger := e.logger.With("entry", entry.ID)

	result := EntryResult{
		Entry:   entry.ID,
		OS:      entry.OS,
		Runtime: entry.Runtime,
		Status:  StatusPass,
	}

	if !e.opts.AllOS && !entry.RunsOn(e.opts.HostOS) {
		result.Status = StatusSkip
		result.Note = fmt.Sprintf("requires %s, host is %s", entry.OS, e.opts.HostOS)
		logger.Info("entry skipped", "reason", result.Note)
		return result
	}

	workspace, err := e.provision(ctx, entry)
	if err != nil {
		result.Status = StatusFail
		result.Note = fmt.Sprintf("provisioning workspace: %v", err)
		logger.Error("entry failed", "err", err)
		return result
	}

	deps := *e.base
	deps.Workspace = workspace
	deps.StateDir = e.store.Dir()
	deps.Entry = entry
	deps.Logger = logger
	deps.Env = append(os.Environ(),
		"CI=true",
		"KESTREL_ENTRY="+entry.ID,
		"KESTREL_OS="+entry.OS,
		"KESTREL_RUNTIME="+entry.Runtime,
	)

	logger.Info("entry started", "os", entry.OS, "runtime", entry.Kind+entry.Runtime)

	for _, step := range e.steps {
		res := step.Run(ctx, &deps)
		result.Steps = append(result.Steps, res)

		switch res.Status {
		case StatusSkip:
			logger.Debug("step skipped", "step", res.Step, "note", res.Note)
		case StatusFail:
			// Install and test failures are fatal to the entry;
			// nothing success-dependent may run after them.
			result.Status = StatusFail
			result.Note = res.Note
			logger.Error("step failed", "step", res.Step, "exit", res.ExitCode)
			return result
		default:
			logger.Info("step passed", "step", res.Step)
		}
	}

	logger.Info("entry passed")
	return result
}

// provision resets the entry workspace and fills it with a snapshot of
// the project files, so entries never share mutable state.
func (e *Engine) provision(ctx context.Context, entry pipeline.Entry) (string, error) {
	workspace := e.store.WorkspaceDir(entry.ID)
	if err := os.RemoveAll(workspace); err != nil {
		return "", err
	}
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return "", err
	}
	if e.provisioner != nil {
		if _, err := e.provisioner.Snapshot(ctx, workspace); err != nil {
			return "", err
		}
	}
	return workspace, nil
}
