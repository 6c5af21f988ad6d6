// SPDX-License-Identifier: AGPL-3.0-or-later

// Package steps implements the per-entry pipeline stages.
package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrel-ci/kestrel/internal/engine"
	"github.com/kestrel-ci/kestrel/internal/pipeline"
)

// Install upgrades the package tool and installs each dependency
// manifest in declared order. The first non-zero exit aborts the
// stage; there are no retries.
type Install struct {
	spec *pipeline.InstallSpec
}

func NewInstall(spec *pipeline.InstallSpec) engine.Step {
	return &Install{spec: spec}
}

func (s *Install) ID() string { return "install" }

func (s *Install) Run(ctx context.Context, deps *engine.Deps) engine.StepResult {
	if s.spec == nil {
		return engine.StepResult{
			Step:   s.ID(),
			Status: engine.StatusSkip,
			Note:   "no install stage declared",
		}
	}

	var commands [][]string
	if s.spec.Upgrade {
		commands = append(commands, []string{s.spec.Tool, "install", "--upgrade", s.spec.Tool})
	}
	for _, manifest := range s.spec.Manifests {
		commands = append(commands, []string{s.spec.Tool, "install", "-r", manifest})
	}

	for _, argv := range commands {
		out, code, err := deps.Exec.Run(ctx, engine.Command{
			Dir:  deps.Workspace,
			Env:  deps.Env,
			Name: argv[0],
			Args: argv[1:],
		})
		if err != nil {
			return engine.StepResult{
				Step:     s.ID(),
				Status:   engine.StatusFail,
				ExitCode: 2,
				Note:     fmt.Sprintf("%s: %v", strings.Join(argv, " "), err),
			}
		}
		if code != 0 {
			return engine.StepResult{
				Step:     s.ID(),
				Status:   engine.StatusFail,
				ExitCode: code,
				Note:     fmt.Sprintf("%s exited %d\n%s", strings.Join(argv, " "), code, strings.TrimSpace(string(out))),
			}
		}
	}

	return engine.StepResult{
		Step:   s.ID(),
		Status: engine.StatusPass,
		Note:   fmt.Sprintf("installed %d manifest(s)", len(s.spec.Manifests)),
	}
}
