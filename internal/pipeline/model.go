// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline defines the kestrel.yaml schema and its loader.
package pipeline

import (
	"fmt"
)

// NotifyMode controls whether a notification fires for a run outcome.
type NotifyMode string

const (
	NotifyAlways NotifyMode = "always"
	NotifyNever  NotifyMode = "never"
	NotifyChange NotifyMode = "change"
)

// Pipeline is the root of a kestrel.yaml document.
type Pipeline struct {
	Version       int          `yaml:"version"`
	Matrix        []Axis       `yaml:"matrix"`
	Install       *InstallSpec `yaml:"install"`
	Test          TestSpec     `yaml:"test"`
	Coverage      CoverageSpec `yaml:"coverage"`
	Notifications NotifySpec   `yaml:"notifications"`
}

// Axis is one declared matrix combination.
type Axis struct {
	OS      string `yaml:"os"`
	Runtime string `yaml:"runtime"`
	Kind    string `yaml:"kind"`
}

// InstallSpec describes the dependency installation stage.
// Manifests are installed strictly in declared order.
type InstallSpec struct {
	Tool      string   `yaml:"tool"`
	Upgrade   bool     `yaml:"upgrade"`
	Manifests []string `yaml:"manifests"`
}

// TestSpec describes the test command for every matrix entry.
type TestSpec struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// CoverageSpec describes the optional coverage upload that follows a
// passing test stage.
type CoverageSpec struct {
	Enabled  bool   `yaml:"enabled"`
	Report   string `yaml:"report"`
	URL      string `yaml:"url"`
	TokenEnv string `yaml:"token_env"`
}

// NotifySpec groups outcome notification channels. Email is the only
// channel today.
type NotifySpec struct {
	Email *EmailSpec `yaml:"email"`
}

// EmailSpec configures outcome mail for one recipient.
type EmailSpec struct {
	Recipient string     `yaml:"recipient"`
	OnSuccess NotifyMode `yaml:"on_success"`
	OnFailure NotifyMode `yaml:"on_failure"`
	SMTPAddr  string     `yaml:"smtp_addr"`
	From      string     `yaml:"from"`
}

// Entry is one expanded, runnable matrix combination.
type Entry struct {
	ID      string
	OS      string
	Runtime string
	Kind    string
}

// Entries expands the matrix in declaration order.
func (p *Pipeline) Entries() []Entry {
	entries := make([]Entry, 0, len(p.Matrix))
	for _, ax := range p.Matrix {
		entries = append(entries, Entry{
			ID:      fmt.Sprintf("%s-%s%s", ax.OS, ax.Kind, ax.Runtime),
			OS:      ax.OS,
			Runtime: ax.Runtime,
			Kind:    ax.Kind,
		})
	}
	return entries
}

// RunsOn reports whether the entry's declared OS matches the host OS
// as named by runtime.GOOS. Hosted services historically called macOS
// images "osx", so that alias is accepted.
func (e Entry) RunsOn(hostOS string) bool {
	switch e.OS {
	case "osx", "macos", "darwin":
		return hostOS == "darwin"
	default:
		return e.OS == hostOS
	}
}
