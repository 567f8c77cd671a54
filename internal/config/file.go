package config

// TorFile is the "tor" section of the config file.
type TorFile struct {
	// Enabled routes traffic through Tor by default.
	Enabled bool `yaml:"enabled,omitempty"`

	// Embedded starts a private Tor daemon by default.
	Embedded bool `yaml:"embedded,omitempty"`

	// SocksAddress overrides the SOCKS5 proxy address.
	SocksAddress string `yaml:"socksAddress,omitempty"`

	// ControlAddress overrides the control port address.
	ControlAddress string `yaml:"controlAddress,omitempty"`

	// ControlPassword authenticates to the control port.
	ControlPassword string `yaml:"controlPassword,omitempty"`
}

// ReadmeFile is the "readme" section of the config file.
type ReadmeFile struct {
	// Path is the local README file.
	Path string `yaml:"path,omitempty"`

	// Repository holds the README ("name" or "owner/name").
	Repository string `yaml:"repository,omitempty"`

	// DocumentPath is the README path inside the repository.
	DocumentPath string `yaml:"documentPath,omitempty"`

	// CreateMessage and UpdateMessage are the commit messages.
	CreateMessage string `yaml:"createMessage,omitempty"`
	UpdateMessage string `yaml:"updateMessage,omitempty"`
}

// File represents the structure of the .ghprofile configuration file.
// Every value is a default that a command-line flag overrides. The API
// token is deliberately absent.
type File struct {
	// Username is the account whose profile is updated.
	Username string `yaml:"username,omitempty"`

	// Bio is the default bio.
	Bio string `yaml:"bio,omitempty"`

	// APIBaseURL is the REST API root, for GitHub Enterprise.
	APIBaseURL string `yaml:"apiBaseURL,omitempty"`

	// Readme configures the README update.
	Readme ReadmeFile `yaml:"readme,omitempty"`

	// Tor configures the anonymizing transport.
	Tor TorFile `yaml:"tor,omitempty"`
}

// Flag names whose values the config file can supply.
const (
	FlagUsername        = "username"
	FlagBio             = "bio"
	FlagReadme          = "readme"
	FlagRepo            = "repo"
	FlagTor             = "tor"
	FlagEmbeddedTor     = "embedded-tor"
	FlagSocks           = "socks"
	FlagControl         = "control"
	FlagControlPassword = "control-password"
	FlagAPIURL          = "api-url"
)

// Apply copies the file's values into c for every setting whose flag was
// not given explicitly. isSet reports whether a flag was set on the
// command line; nil means none was.
func (f *File) Apply(c *Config, isSet func(flag string) bool) {
	if isSet == nil {
		isSet = func(string) bool { return false }
	}

	setString := func(flag string, dst *string, value string) {
		if value != "" && !isSet(flag) {
			*dst = value
		}
	}
	setBool := func(flag string, dst *bool, value bool) {
		if value && !isSet(flag) {
			*dst = value
		}
	}

	setString(FlagUsername, &c.Username, f.Username)
	setString(FlagBio, &c.Bio, f.Bio)
	setString(FlagAPIURL, &c.APIBaseURL, f.APIBaseURL)
	setString(FlagReadme, &c.ReadmePath, f.Readme.Path)
	setString(FlagRepo, &c.Repository, f.Readme.Repository)
	setBool(FlagTor, &c.UseTor, f.Tor.Enabled)
	setBool(FlagEmbeddedTor, &c.EmbeddedTor, f.Tor.Embedded)
	setString(FlagSocks, &c.TorProxyAddress, f.Tor.SocksAddress)
	setString(FlagControl, &c.TorControlAddress, f.Tor.ControlAddress)
	setString(FlagControlPassword, &c.TorControlPassword, f.Tor.ControlPassword)

	// No flags exist for these.
	if f.Readme.DocumentPath != "" {
		c.DocumentPath = f.Readme.DocumentPath
	}
	if f.Readme.CreateMessage != "" {
		c.CreateMessage = f.Readme.CreateMessage
	}
	if f.Readme.UpdateMessage != "" {
		c.UpdateMessage = f.Readme.UpdateMessage
	}
}
