// Package database provides the SQLite run history of ghprofile.
//
// Every run stores one row holding its summary columns and the full
// model.RunReport as JSON, so `ghprofile history` can list past runs and
// show any of them again.
//
// SQLite is accessed through modernc.org/sqlite, a CGO-free driver, and
// the database is a single file in the XDG data directory.
package database
