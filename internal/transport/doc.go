// Package transport defines the Transport abstraction used by ghprofile to
// reach the GitHub API, and its proxy-less implementation.
//
// The anonymizing implementation lives in the tor package. Both share the
// Get helper so "non-2xx is a failure, log it, never panic" behaves the same
// whichever transport a run is bound to.
package transport
