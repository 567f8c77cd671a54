// Package pipeline orchestrates one ghprofile run.
//
// A run is a fixed sequence of steps: the connectivity gate, an identity
// check, the bio update, the README update and finally, when traffic goes
// through Tor, an identity rotation. Each step records one model.Outcome in
// the run's model.RunReport, which also tracks the run state machine.
//
// A failed gate halts the run. Other failures either let the remaining steps
// run (the default) or stop the run (WithContinueOnError(false)). The
// rotation step runs in both cases and its failure never changes the result.
package pipeline
