// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine executes a pipeline's matrix entries and records
// their results.
package engine

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/kestrel-ci/kestrel/internal/pipeline"
)

// Command is one external invocation requested by a step.
type Command struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

// CommandRunner executes external commands on behalf of steps.
// A non-zero exit is reported through exitCode with a nil error; err
// is reserved for failures to start the command at all.
type CommandRunner interface {
	Run(ctx context.Context, c Command) (output []byte, exitCode int, err error)
}

// CoverageUploader sends a coverage report to the reporting service.
type CoverageUploader interface {
	Upload(ctx context.Context, reportPath, entryID string) error
}

// Provisioner populates an entry workspace with the project's files.
type Provisioner interface {
	Snapshot(ctx context.Context, dest string) (int, error)
}

// Deps carries everything a step needs for one entry.
type Deps struct {
	ProjectRoot string
	Workspace   string
	StateDir    string
	Entry       pipeline.Entry
	Env         []string
	Exec        CommandRunner
	Uploader    CoverageUploader
	Logger      *log.Logger
}

// Step is a unit of work inside one matrix entry.
type Step interface {
	// ID returns the stable step identifier (e.g. "install", "test").
	ID() string

	// Run executes the step.
	Run(ctx context.Context, deps *Deps) StepResult
}
