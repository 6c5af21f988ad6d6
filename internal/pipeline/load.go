// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the canonical pipeline file name.
const FileName = "kestrel.yaml"

// ErrNotFound is returned by Discover when no pipeline file exists in
// the directory or any of its parents.
var ErrNotFound = errors.New("no " + FileName + " found")

// Load reads and validates a pipeline file.
func Load(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pipeline file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var p Pipeline
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Discover walks upward from dir looking for kestrel.yaml and returns
// its absolute path. The nearest file wins.
func Discover(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(abs, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNotFound
		}
		abs = parent
	}
}

func (p *Pipeline) applyDefaults() {
	if p.Version == 0 {
		p.Version = 1
	}
	if p.Install != nil && p.Install.Tool == "" {
		p.Install.Tool = "pip"
	}
	if p.Notifications.Email != nil {
		if p.Notifications.Email.OnSuccess == "" {
			p.Notifications.Email.OnSuccess = NotifyChange
		}
		if p.Notifications.Email.OnFailure == "" {
			p.Notifications.Email.OnFailure = NotifyAlways
		}
	}
}

// Validate checks structural invariants. Errors name the offending
// field so validate output is actionable.
func (p *Pipeline) Validate() error {
	if p.Version != 1 {
		return fmt.Errorf("version: unsupported value %d (want 1)", p.Version)
	}
	if len(p.Matrix) == 0 {
		return errors.New("matrix: at least one entry is required")
	}
	seen := make(map[string]bool, len(p.Matrix))
	for i, ax := range p.Matrix {
		if ax.OS == "" {
			return fmt.Errorf("matrix[%d].os: required", i)
		}
		if ax.Runtime == "" {
			return fmt.Errorf("matrix[%d].runtime: required", i)
		}
		key := ax.OS + "/" + ax.Kind + "/" + ax.Runtime
		if seen[key] {
			return fmt.Errorf("matrix[%d]: duplicate combination %s %s %s", i, ax.OS, ax.Kind, ax.Runtime)
		}
		seen[key] = true
	}
	if p.Install != nil && len(p.Install.Manifests) == 0 {
		return errors.New("install.manifests: at least one manifest is required when install is present")
	}
	if p.Test.Command == "" {
		return errors.New("test.command: required")
	}
	if p.Coverage.Enabled {
		if p.Coverage.Report == "" {
			return errors.New("coverage.report: required when coverage is enabled")
		}
		if p.Coverage.URL == "" {
			return errors.New("coverage.url: required when coverage is enabled")
		}
	}
	if e := p.Notifications.Email; e != nil {
		if e.Recipient == "" {
			return errors.New("notifications.email.recipient: required")
		}
		if err := validMode("notifications.email.on_success", e.OnSuccess); err != nil {
			return err
		}
		if err := validMode("notifications.email.on_failure", e.OnFailure); err != nil {
			return err
		}
	}
	return nil
}

func validMode(field string, m NotifyMode) error {
	switch m {
	case NotifyAlways, NotifyNever, NotifyChange:
		return nil
	}
	return fmt.Errorf("%s: invalid mode %q (want always, never or change)", field, m)
}
