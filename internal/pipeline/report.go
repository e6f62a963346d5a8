package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/everstacklabs/modelwatch/internal/dataset"
	"github.com/everstacklabs/modelwatch/internal/diff"
)

// ExitCode constants for CLI.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitChanges = 2 // Changes detected (diff mode)
)

// OutcomeKind classifies what happened to one provider during a run.
type OutcomeKind string

const (
	OutcomeUpdated     OutcomeKind = "updated"
	OutcomeUnchanged   OutcomeKind = "unchanged"
	OutcomeRejected    OutcomeKind = "rejected"
	OutcomeFetchFailed OutcomeKind = "fetch_failed"
	OutcomeWriteFailed OutcomeKind = "write_failed"
	OutcomeCancelled   OutcomeKind = "cancelled"
)

// ProviderOutcome is the per-provider result of a sync run.
type ProviderOutcome struct {
	Provider string
	Kind     OutcomeKind
	Reason   string
	Changes  []dataset.FieldChange
	Attempts int
	IsNew    bool
}

// RunReport aggregates provider outcomes for one sync run.
type RunReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []ProviderOutcome
	Version   string
}

// Count returns the number of outcomes of the given kind.
func (r *RunReport) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// HasUpdates reports whether any provider produced a dataset change.
func (r *RunReport) HasUpdates() bool {
	return r.Count(OutcomeUpdated) > 0
}

// HasNewModels reports whether any update introduced a new model.
func (r *RunReport) HasNewModels() bool {
	for _, o := range r.Outcomes {
		if o.Kind == OutcomeUpdated && o.IsNew {
			return true
		}
	}
	return false
}

// TotalChanges sums field changes across updated providers.
func (r *RunReport) TotalChanges() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Changes)
	}
	return n
}

// Render formats the report for terminal output and publish bodies.
func (r *RunReport) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sync finished in %s: %d updated, %d unchanged, %d rejected, %d failed\n",
		r.Duration.Round(time.Millisecond),
		r.Count(OutcomeUpdated),
		r.Count(OutcomeUnchanged),
		r.Count(OutcomeRejected),
		r.Count(OutcomeFetchFailed)+r.Count(OutcomeWriteFailed))
	if n := r.Count(OutcomeCancelled); n > 0 {
		fmt.Fprintf(&b, "%d providers not processed (cancelled)\n", n)
	}
	if r.Version != "" {
		fmt.Fprintf(&b, "Dataset version: %s\n", r.Version)
	}

	for _, o := range r.Outcomes {
		switch o.Kind {
		case OutcomeUpdated:
			b.WriteString("\n")
			b.WriteString(diff.RenderChanges(o.Provider, o.Changes))
		case OutcomeRejected, OutcomeFetchFailed, OutcomeWriteFailed:
			fmt.Fprintf(&b, "\n%s: %s (%s)\n", o.Provider, o.Kind, o.Reason)
		}
	}

	return b.String()
}
