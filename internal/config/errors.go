package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoUsername is returned when no account name is configured.
	ErrNoUsername = errors.New("no username specified: use --username or set username in the config file")

	// ErrNoToken is returned when no API token is found in flags or environment.
	ErrNoToken = errors.New("no token specified: use --token or set GHPROFILE_TOKEN or GITHUB_TOKEN")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidTorStartupTimeout is returned when the embedded Tor bootstrap
	// timeout is not positive.
	ErrInvalidTorStartupTimeout = errors.New("invalid Tor startup timeout: must be positive")

	// ErrNoAPIBaseURL is returned when the API base URL is empty.
	ErrNoAPIBaseURL = errors.New("no API base URL specified")

	// ErrNoDocumentPath is returned when a README update is requested
	// without a document path.
	ErrNoDocumentPath = errors.New("no README path inside the repository specified")

	// ErrInvalidDocumentPath is returned when the document path escapes the
	// repository root.
	ErrInvalidDocumentPath = errors.New("invalid README path: must not contain '..'")

	// ErrInvalidReportFormat is returned for an unknown --report-format.
	ErrInvalidReportFormat = errors.New("invalid report format: must be simple, markdown or json")
)
