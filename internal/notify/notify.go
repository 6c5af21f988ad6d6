// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify evaluates the outcome notification policy and sends
// mail accordingly.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrel-ci/kestrel/internal/engine"
	"github.com/kestrel-ci/kestrel/internal/pipeline"
)

// Mailer delivers a single plain-text message.
type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Notifier applies an email policy to run outcomes.
type Notifier struct {
	spec   *pipeline.EmailSpec
	mailer Mailer
}

// New creates a Notifier. spec may be nil, in which case Notify never
// sends.
func New(spec *pipeline.EmailSpec, mailer Mailer) *Notifier {
	return &Notifier{spec: spec, mailer: mailer}
}

// ShouldNotify decides whether the current outcome warrants mail,
// given the previous persisted run (nil when no prior state exists).
//
// Failures follow on_failure; successes follow on_success. "change"
// fires when the status differs from the previous run's, and absent
// prior state counts as a change, so a repository's first green run
// does notify.
func ShouldNotify(spec *pipeline.EmailSpec, prev, current *engine.LastRun) bool {
	if spec == nil || current == nil {
		return false
	}

	mode := spec.OnSuccess
	if !current.Passed() {
		mode = spec.OnFailure
	}

	switch mode {
	case pipeline.NotifyAlways:
		return true
	case pipeline.NotifyNever:
		return false
	case pipeline.NotifyChange:
		return prev == nil || prev.Status != current.Status
	}
	return false
}

// Notify sends the outcome mail when the policy calls for it. It
// returns whether a message was sent. Delivery problems are returned
// but must never change the run's recorded status.
func (n *Notifier) Notify(ctx context.Context, prev, current *engine.LastRun) (bool, error) {
	if !ShouldNotify(n.spec, prev, current) {
		return false, nil
	}

	subject := fmt.Sprintf("kestrel: run %s", current.Status)
	if err := n.mailer.Send(ctx, n.spec.From, n.spec.Recipient, subject, renderBody(current)); err != nil {
		return false, fmt.Errorf("sending notification: %w", err)
	}
	return true, nil
}

func renderBody(run *engine.LastRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished: %s\n\n", run.ID, run.Status)
	fmt.Fprintf(&b, "Entries: %s\n", strings.Join(run.Entries, ", "))
	if len(run.Failed) > 0 {
		fmt.Fprintf(&b, "Failed: %s\n", strings.Join(run.Failed, ", "))
	}
	fmt.Fprintf(&b, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	return b.String()
}
