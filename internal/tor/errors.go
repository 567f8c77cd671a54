package tor

import (
	"errors"
	"fmt"
)

// Tor connectivity errors.
var (
	// ErrProxyNotTor is returned when the configured proxy address responds
	// but does not speak SOCKS5 the way Tor does.
	ErrProxyNotTor = errors.New("proxy is not a Tor SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established. Tor is usually not running.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyTimeout is returned when the connection to the proxy times out.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrInvalidProxyAddress is returned when an address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// Tor control port errors. Every identity rotation failure wraps ErrProxyControl.
var (
	// ErrProxyControl is the root of all identity rotation failures.
	ErrProxyControl = errors.New("tor control failure")

	// ErrNoAuthMethod is returned when the control port offers no
	// authentication method we can satisfy.
	ErrNoAuthMethod = errors.New("no usable control port authentication method")

	// ErrMalformedReply is returned when a control reply cannot be parsed.
	ErrMalformedReply = errors.New("malformed control port reply")
)

// ControlError is a non-success reply from the Tor control port,
// e.g. "515 Authentication failed".
type ControlError struct {
	// Command is the command that was rejected (without arguments).
	Command string

	// Code is the three digit status code.
	Code int

	// Message is the human readable reply text.
	Message string
}

// Error implements error.
func (e *ControlError) Error() string {
	return fmt.Sprintf("%s rejected: %d %s", e.Command, e.Code, e.Message)
}

// ProxyStatus represents the result of checking the Tor proxy connection.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy is a working Tor SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the proxy is not a Tor proxy.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates we could not establish a connection.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the connection attempt timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not Tor)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotTor
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
