// Package profileapi is the GitHub REST API collaborator of ghprofile.
//
// It wraps github.com/google/go-github with the six operations a profile
// update needs: read the authenticated login, edit the bio, check the README
// repository, and read, create or update the README document. Requests use
// the HTTP client of the run's transport with a bearer token added by
// golang.org/x/oauth2.
package profileapi
