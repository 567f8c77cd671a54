package model

import (
	"time"

	"github.com/google/uuid"
)

// State is a position in the per-run state machine:
//
//	Initialized → ConnectivityChecked → BioUpdated? → ReadmeUpdated? → IdentityRotated? → Done
//
// Failed is terminal: the connectivity gate failed or the run was cancelled.
type State string

// Run states.
const (
	StateInitialized         State = "Initialized"
	StateConnectivityChecked State = "ConnectivityChecked"
	StateBioUpdated          State = "BioUpdated"
	StateReadmeUpdated       State = "ReadmeUpdated"
	StateIdentityRotated     State = "IdentityRotated"
	StateDone                State = "Done"
	StateFailed              State = "Failed"
)

// RunReport accumulates the outcomes of one run.
// It is created once per run and never reused.
type RunReport struct {
	// ID uniquely identifies the run in the history database.
	ID string `json:"id"`

	// Username is the account whose profile is updated.
	Username string `json:"username"`

	// Repository is the README repository ("" when no README update was requested).
	Repository string `json:"repository,omitempty"`

	// Anonymized is true when traffic went through Tor.
	Anonymized bool `json:"anonymized"`

	// Transport names the transport used ("direct" or "tor").
	Transport string `json:"transport"`

	// DryRun is true when no mutating call was issued.
	DryRun bool `json:"dry_run,omitempty"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// State is the last state reached.
	State State `json:"state"`

	// Outcomes holds one entry per executed step, in order.
	Outcomes []Outcome `json:"outcomes"`
}

// NewRunReport creates a report in the Initialized state.
func NewRunReport(username string) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		Username:  username,
		StartedAt: time.Now(),
		State:     StateInitialized,
		Outcomes:  make([]Outcome, 0, 4),
	}
}

// Record appends an outcome and advances the state machine.
func (r *RunReport) Record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)

	if o.Fatal() {
		r.State = StateFailed
		return
	}
	if !o.OK() {
		return
	}

	switch o.Step {
	case StepConnectivity:
		r.State = StateConnectivityChecked
	case StepBio:
		r.State = StateBioUpdated
	case StepReadme:
		r.State = StateReadmeUpdated
	case StepRotate:
		r.State = StateIdentityRotated
	case StepIdentity:
		// informational, does not advance the state machine
	}
}

// Finish marks the run as finished. A run that did not fail the gate ends in Done.
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
	if r.State != StateFailed {
		r.State = StateDone
	}
}

// Outcome returns the outcome recorded for step, if any.
func (r *RunReport) Outcome(step StepName) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Step == step {
			return o, true
		}
	}
	return Outcome{}, false
}

// Failures returns the failed outcomes that decide the run result.
// Identity rotation failures and the informational identity check are
// excluded: they never change the outcome of the run.
func (r *RunReport) Failures() []Outcome {
	var failures []Outcome
	for _, o := range r.Outcomes {
		if o.OK() || o.Kind == FailureProxyControl || o.Step == StepIdentity {
			continue
		}
		failures = append(failures, o)
	}
	return failures
}

// Succeeded reports whether the gate passed and every mutating step succeeded.
func (r *RunReport) Succeeded() bool {
	return r.State != StateFailed && len(r.Failures()) == 0
}

// Successes counts successful non-informational steps.
func (r *RunReport) Successes() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() && (o.Step == StepBio || o.Step == StepReadme) {
			n++
		}
	}
	return n
}

// Duration returns the run duration, or zero when the run has not finished.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
