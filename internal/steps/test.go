// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrel-ci/kestrel/internal/engine"
	"github.com/kestrel-ci/kestrel/internal/pipeline"
)

// Test runs the pipeline's test command in the entry workspace and
// preserves its combined output as a log under the state dir.
type Test struct {
	spec pipeline.TestSpec
}

func NewTest(spec pipeline.TestSpec) engine.Step {
	return &Test{spec: spec}
}

func (s *Test) ID() string { return "test" }

func (s *Test) Run(ctx context.Context, deps *engine.Deps) engine.StepResult {
	out, code, err := deps.Exec.Run(ctx, engine.Command{
		Dir:  deps.Workspace,
		Env:  deps.Env,
		Name: s.spec.Command,
		Args: s.spec.Args,
	})

	if werr := writeLog(deps.StateDir, deps.Entry.ID, out); werr != nil && deps.Logger != nil {
		deps.Logger.Warn("could not write test log", "err", werr)
	}

	if err != nil {
		return engine.StepResult{
			Step:     s.ID(),
			Status:   engine.StatusFail,
			ExitCode: 2,
			Note:     fmt.Sprintf("%s: %v", s.spec.Command, err),
		}
	}
	if code != 0 {
		return engine.StepResult{
			Step:     s.ID(),
			Status:   engine.StatusFail,
			ExitCode: code,
			Note:     strings.TrimSpace(string(out)),
		}
	}

	return engine.StepResult{Step: s.ID(), Status: engine.StatusPass}
}

func writeLog(stateDir, entryID string, out []byte) error {
	path := filepath.Join(stateDir, "logs", entryID+".log")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}
