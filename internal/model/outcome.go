package model

import (
	"encoding/json"
	"fmt"
)

// FailureKind classifies why a step failed.
//
// The zero value FailureNone marks a successful outcome, so an Outcome is
// a success exactly when its Kind is FailureNone.
type FailureKind int

const (
	// FailureNone means the step succeeded.
	FailureNone FailureKind = iota

	// FailureConnectivity means the pre-flight gate could not reach the API.
	// It is fatal to the run: no further step is attempted.
	FailureConnectivity

	// FailureRemoteRejection means the profile API rejected a call
	// (authentication, validation, rate limit, stale version token, ...).
	// It fails the step but not the process.
	FailureRemoteRejection

	// FailureLocalIO means the local README file was missing or unreadable.
	FailureLocalIO

	// FailureProxyControl means identity rotation could not be completed.
	// It is always non-fatal and only logged.
	FailureProxyControl

	// FailureCancelled means the run was interrupted before the step ran.
	FailureCancelled
)

// String returns the name used in logs and reports.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureConnectivity:
		return "ConnectivityFailure"
	case FailureRemoteRejection:
		return "RemoteRejection"
	case FailureLocalIO:
		return "LocalIOFailure"
	case FailureProxyControl:
		return "ProxyControlFailure"
	case FailureCancelled:
		return "Cancelled"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind by name so stored reports stay readable.
func (k FailureKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind encoded by MarshalJSON.
func (k *FailureKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for candidate := FailureNone; candidate <= FailureCancelled; candidate++ {
		if candidate.String() == s {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown failure kind %q", s)
}

// StepName identifies one orchestration step.
type StepName string

// Steps of a run, in execution order.
const (
	StepConnectivity StepName = "connectivity"
	StepIdentity     StepName = "identity"
	StepBio          StepName = "bio"
	StepReadme       StepName = "readme"
	StepRotate       StepName = "rotate-identity"
)

// Action describes what a successful step did to the remote state.
type Action string

// Actions reported by successful steps.
const (
	ActionVerified  Action = "verified"
	ActionUpdated   Action = "updated"
	ActionCreated   Action = "created"
	ActionUnchanged Action = "unchanged"
	ActionDryRun    Action = "dry-run"
	ActionRotated   Action = "rotated"
)

// Outcome is the tagged result of one step: Success or Failure(reason).
// Steps always return an Outcome value; they never surface raw errors.
type Outcome struct {
	// Step is the step that produced this outcome.
	Step StepName `json:"step"`

	// Kind is FailureNone on success.
	Kind FailureKind `json:"kind"`

	// Action is what the step did when it succeeded.
	Action Action `json:"action,omitempty"`

	// Target names the object acted upon (e.g. "octocat/octocat:README.md").
	Target string `json:"target,omitempty"`

	// Reason is the failure reason, empty on success.
	Reason string `json:"reason,omitempty"`

	// Bytes is the size of the content written, when applicable.
	Bytes int `json:"bytes,omitempty"`

	// Diff is a unified diff preview produced in dry-run mode.
	Diff string `json:"diff,omitempty"`
}

// Success builds a successful outcome.
func Success(step StepName, action Action, target string) Outcome {
	return Outcome{Step: step, Kind: FailureNone, Action: action, Target: target}
}

// Failure builds a failed outcome from err.
func Failure(step StepName, kind FailureKind, target string, err error) Outcome {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{Step: step, Kind: kind, Target: target, Reason: reason}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Kind == FailureNone
}

// Fatal reports whether this outcome must halt the run.
func (o Outcome) Fatal() bool {
	return o.Kind == FailureConnectivity || o.Kind == FailureCancelled
}

// String returns a one-line summary.
func (o Outcome) String() string {
	if o.OK() {
		if o.Target == "" {
			return fmt.Sprintf("%s: %s", o.Step, o.Action)
		}
		return fmt.Sprintf("%s: %s %s", o.Step, o.Action, o.Target)
	}
	return fmt.Sprintf("%s: %s: %s", o.Step, o.Kind, o.Reason)
}
