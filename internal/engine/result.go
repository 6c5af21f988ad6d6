// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import "time"

// Status is the outcome of a step or a whole entry.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// StepResult records a single step execution within an entry.
type StepResult struct {
	Step     string `json:"step"`
	Status   Status `json:"status"`
	ExitCode int    `json:"exit_code"`
	Note     string `json:"note,omitempty"`
}

// EntryResult records one matrix entry's execution.
// Matches .kestrel/run/entries/<entry>.json.
type EntryResult struct {
	Entry   string       `json:"entry"`
	OS      string       `json:"os"`
	Runtime string       `json:"runtime"`
	Status  Status       `json:"status"`
	Steps   []StepResult `json:"steps,omitempty"`
	Note    string       `json:"note,omitempty"`
}

// LastRun is the summary of the most recent run.
// Matches .kestrel/run/last-run.json.
type LastRun struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"` // "pass" or "fail"
	Entries    []string  `json:"entries"`
	Failed     []string  `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Passed reports whether the run finished green.
func (l *LastRun) Passed() bool { return l.Status == string(StatusPass) }
