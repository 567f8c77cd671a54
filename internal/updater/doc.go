// Package updater implements the profile update operations of ghprofile:
// the connectivity gate, the bio edit and the README update-or-create.
//
// An Updater is bound to one transport.Transport for its lifetime. Each
// operation returns a model.Outcome; failures are classified with a
// model.FailureKind and logged, never returned as errors.
//
// The README step reads the local file first (a missing file never costs a
// remote call), checks that the repository exists, then fetches the remote
// document. An existing document is updated with its version token, a
// missing one (HTTP 404) is created, and any other fetch failure fails the
// step. Identical content is left untouched.
package updater
