package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	// 127.0.0.1 rather than localhost avoids resolving to ::1.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorControlAddress is the standard Tor control port address.
	DefaultTorControlAddress = "127.0.0.1:9051"

	// DefaultTimeout bounds each HTTP request. Tor adds several relay hops,
	// so it is generous.
	DefaultTimeout = 60 * time.Second

	// DefaultTorStartupTimeout bounds the embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultAPIBaseURL is the GitHub REST API root. It is also the
	// connectivity gate endpoint.
	DefaultAPIBaseURL = "https://api.github.com/"

	// DefaultDocumentPath is the README path inside the repository.
	DefaultDocumentPath = "README.md"

	// DefaultCreateMessage is the commit message of a README creation.
	DefaultCreateMessage = "Initialize README via ghprofile"

	// DefaultUpdateMessage is the commit message of a README update.
	DefaultUpdateMessage = "Update README via ghprofile"

	// AppName is the application name used for XDG directory paths.
	AppName = "ghprofile"
)

// Environment variables consulted for secrets, in priority order.
const (
	EnvToken           = "GHPROFILE_TOKEN"
	EnvGitHubToken     = "GITHUB_TOKEN"
	EnvControlPassword = "GHPROFILE_TOR_CONTROL_PASSWORD"
)

// Report formats.
const (
	ReportFormatSimple   = "simple"
	ReportFormatMarkdown = "markdown"
	ReportFormatJSON     = "json"
)

// Config holds every option of one run. It is populated from CLI flags,
// the optional config file and the environment, then passed to components
// by injection.
type Config struct {
	// Username is the account whose profile is updated.
	Username string

	// Token is the API credential. It never comes from the config file.
	Token string

	// Bio is the new profile bio; empty leaves the bio alone.
	Bio string

	// NormalizeBio sends the bio in Unicode NFC. Off, the bio is sent as given.
	NormalizeBio bool

	// ReadmePath is the local README file; empty skips the README update.
	ReadmePath string

	// Repository holds the README ("name" or "owner/name"). Empty means the
	// profile repository, which is named after the user.
	Repository string

	// UseTor routes every request through the Tor SOCKS5 proxy and rotates
	// the identity at the end of the run.
	UseTor bool

	// EmbeddedTor starts a private Tor daemon instead of using TorProxyAddress.
	// It implies UseTor.
	EmbeddedTor bool

	// TorProxyAddress is the SOCKS5 proxy address in "host:port" format.
	TorProxyAddress string

	// TorControlAddress is the Tor control port address in "host:port" format.
	TorControlAddress string

	// TorControlPassword authenticates to the control port when set.
	// Cookie and NULL authentication need no configuration.
	TorControlPassword string

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// APIBaseURL is the REST API root, for GitHub Enterprise.
	APIBaseURL string

	// DocumentPath is the README path inside the repository.
	DocumentPath string

	// CreateMessage and UpdateMessage are the README commit messages.
	CreateMessage string
	UpdateMessage string

	// FailFast stops the run at the first failed step. By default every
	// step is attempted and the outcomes are aggregated.
	FailFast bool

	// DryRun reads remote state and reports what would change.
	DryRun bool

	// Verbose enables debug output on the console.
	Verbose bool

	// ConfigFilePath is an explicit config file path.
	ConfigFilePath string

	// LogDir holds the per-run log files.
	LogDir string

	// NoLogFile disables the per-run log file.
	NoLogFile bool

	// DBDir holds the run history database.
	DBDir string

	// SaveHistory stores the run in the history database.
	SaveHistory bool

	// ReportFormat is one of ReportFormatSimple, ReportFormatMarkdown, ReportFormatJSON.
	ReportFormat string

	// ReportFile receives the report instead of stdout when set.
	ReportFile string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		TorProxyAddress:   DefaultTorProxyAddress,
		TorControlAddress: DefaultTorControlAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Timeout:           DefaultTimeout,
		APIBaseURL:        DefaultAPIBaseURL,
		DocumentPath:      DefaultDocumentPath,
		CreateMessage:     DefaultCreateMessage,
		UpdateMessage:     DefaultUpdateMessage,
		LogDir:            XDGLogDir(),
		DBDir:             XDGDataDir(),
		SaveHistory:       true,
		ReportFormat:      ReportFormatSimple,
	}
}

// Anonymized reports whether traffic goes through Tor.
func (c *Config) Anonymized() bool {
	return c.UseTor || c.EmbeddedTor
}

// ResolveToken returns flagValue when set, otherwise the first non-empty
// environment variable among EnvToken and EnvGitHubToken.
func ResolveToken(flagValue string, getenv func(string) string) string {
	if flagValue != "" {
		return flagValue
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, key := range []string{EnvToken, EnvGitHubToken} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/ghprofile.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/ghprofile.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGLogDir returns the per-run log directory, e.g. ~/.local/state/ghprofile/logs.
func XDGLogDir() string {
	return filepath.Join(xdg.StateHome, AppName, "logs")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return ErrNoUsername
	}
	if c.Token == "" {
		return ErrNoToken
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.EmbeddedTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTorStartupTimeout
	}
	if c.APIBaseURL == "" {
		return ErrNoAPIBaseURL
	}
	if c.ReadmePath != "" && strings.TrimSpace(c.DocumentPath) == "" {
		return ErrNoDocumentPath
	}
	if strings.Contains(c.DocumentPath, "..") {
		return ErrInvalidDocumentPath
	}
	switch c.ReportFormat {
	case ReportFormatSimple, ReportFormatMarkdown, ReportFormatJSON:
	default:
		return ErrInvalidReportFormat
	}
	return nil
}
