// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kestrel-ci/kestrel/internal/engine"
	"github.com/kestrel-ci/kestrel/internal/pipeline"
)

// CoverageUpload ships the coverage report produced by the test stage
// to the reporting service. It only ever runs after a passing test
// step (the engine aborts the entry on failure). Its own problems are
// recorded as warnings and never fail the entry.
type CoverageUpload struct {
	spec pipeline.CoverageSpec
}

func NewCoverageUpload(spec pipeline.CoverageSpec) engine.Step {
	return &CoverageUpload{spec: spec}
}

func (s *CoverageUpload) ID() string { return "coverage" }

func (s *CoverageUpload) Run(ctx context.Context, deps *engine.Deps) engine.StepResult {
	if !s.spec.Enabled {
		return engine.StepResult{
			Step:   s.ID(),
			Status: engine.StatusSkip,
			Note:   "coverage disabled",
		}
	}
	if deps.Uploader == nil {
		return engine.StepResult{
			Step:     s.ID(),
			Status:   engine.StatusFail,
			ExitCode: 4,
			Note:     "coverage enabled but no uploader configured",
		}
	}

	report := filepath.Join(deps.Workspace, s.spec.Report)
	if _, err := os.Stat(report); err != nil {
		note := fmt.Sprintf("warning: coverage report %s not found", s.spec.Report)
		if deps.Logger != nil {
			deps.Logger.Warn("coverage report missing", "report", s.spec.Report)
		}
		return engine.StepResult{Step: s.ID(), Status: engine.StatusPass, Note: note}
	}

	if err := deps.Uploader.Upload(ctx, report, deps.Entry.ID); err != nil {
		note := fmt.Sprintf("warning: coverage upload failed: %v", err)
		if deps.Logger != nil {
			deps.Logger.Warn("coverage upload failed", "err", err)
		}
		return engine.StepResult{Step: s.ID(), Status: engine.StatusPass, Note: note}
	}

	return engine.StepResult{
		Step:   s.ID(),
		Status: engine.StatusPass,
		Note:   "uploaded " + s.spec.Report,
	}
}

// ForPipeline returns the ordered steps every matrix entry executes:
// install, test, coverage.
func ForPipeline(p *pipeline.Pipeline) []engine.Step {
	return []engine.Step{
		NewInstall(p.Install),
		NewTest(p.Test),
		NewCoverageUpload(p.Coverage),
	}
}
