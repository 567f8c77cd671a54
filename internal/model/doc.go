// Package model defines the data passed between ghprofile components.
//
// It contains:
//   - Outcome: the tagged Success/Failure result every step produces
//   - FailureKind: the error taxonomy (connectivity, remote rejection,
//     local I/O, proxy control)
//   - RunReport: the per-run state machine and accumulated outcomes
//
// The package has no dependencies on other internal packages, so the
// updater, pipeline, report and database packages can all share it.
package model
