package tor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"
	"time"
)

// Control port authentication methods advertised in PROTOCOLINFO.
const (
	authMethodNull     = "NULL"
	authMethodPassword = "HASHEDPASSWORD"
	authMethodCookie   = "COOKIE"
	authMethodSafe     = "SAFECOOKIE"
)

// SignalNewIdentity asks Tor to use new circuits for new connections.
const SignalNewIdentity = "NEWNYM"

// replyOK is the control protocol success code.
const replyOK = 250

// ProtocolInfo is the parsed reply to PROTOCOLINFO.
type ProtocolInfo struct {
	// AuthMethods lists the accepted methods, e.g. ["COOKIE", "SAFECOOKIE"].
	AuthMethods []string

	// CookieFile is the path of the authentication cookie, if advertised.
	CookieFile string

	// TorVersion is the daemon version, if advertised.
	TorVersion string
}

// HasMethod reports whether method is among the accepted auth methods.
func (p ProtocolInfo) HasMethod(method string) bool {
	for _, m := range p.AuthMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// ControlConn is a single session on the Tor control port.
//
// The control protocol is line oriented: a command line, then a reply of
// one or more "250-..." lines terminated by "250 ...". A ControlConn is not
// safe for concurrent use; Tor does not multiplex sessions on one connection.
type ControlConn struct {
	conn net.Conn
	text *textproto.Conn
}

// DialControl opens a control connection. The whole session is bounded by
// timeout (and by the context deadline, if earlier).
func DialControl(ctx context.Context, address string, timeout time.Duration) (*ControlConn, error) {
	if !isValidAddress(address) {
		return nil, ErrInvalidProxyAddress
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control port %s: %w", address, err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set control deadline: %w", err)
	}

	return &ControlConn{conn: conn, text: textproto.NewConn(conn)}, nil
}

// Close closes the connection. It is safe to call more than once.
func (c *ControlConn) Close() error {
	err := c.text.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// command sends one command line and reads a reply, which must be 250.
// name is the command keyword used in errors; args are never included in
// errors because AUTHENTICATE carries secrets.
func (c *ControlConn) command(name, line string) (string, error) {
	if err := c.text.PrintfLine("%s", line); err != nil {
		return "", fmt.Errorf("failed to send %s: %w", name, err)
	}

	code, msg, err := c.text.ReadResponse(replyOK)
	if err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) {
			return "", &ControlError{Command: name, Code: protoErr.Code, Message: protoErr.Msg}
		}
		return "", fmt.Errorf("failed to read %s reply: %w", name, err)
	}
	if code != replyOK {
		return "", &ControlError{Command: name, Code: code, Message: msg}
	}
	return msg, nil
}

// ProtocolInfo queries the accepted authentication methods.
func (c *ControlConn) ProtocolInfo() (ProtocolInfo, error) {
	msg, err := c.command("PROTOCOLINFO", "PROTOCOLINFO 1")
	if err != nil {
		return ProtocolInfo{}, err
	}
	return parseProtocolInfo(msg)
}

// parseProtocolInfo parses the lines of a PROTOCOLINFO reply:
//
//	PROTOCOLINFO 1
//	AUTH METHODS=COOKIE,SAFECOOKIE COOKIEFILE="/run/tor/control.authcookie"
//	VERSION Tor="0.4.8.10"
//	OK
func parseProtocolInfo(msg string) (ProtocolInfo, error) {
	var info ProtocolInfo
	sawAuth := false

	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "AUTH "):
			sawAuth = true
			rest := strings.TrimPrefix(line, "AUTH ")
			for _, field := range splitFields(rest) {
				key, value, ok := strings.Cut(field, "=")
				if !ok {
					continue
				}
				switch key {
				case "METHODS":
					info.AuthMethods = strings.Split(value, ",")
				case "COOKIEFILE":
					path, err := unquote(value)
					if err != nil {
						return ProtocolInfo{}, err
					}
					info.CookieFile = path
				}
			}
		case strings.HasPrefix(line, "VERSION "):
			for _, field := range splitFields(strings.TrimPrefix(line, "VERSION ")) {
				if key, value, ok := strings.Cut(field, "="); ok && key == "Tor" {
					v, err := unquote(value)
					if err != nil {
						return ProtocolInfo{}, err
					}
					info.TorVersion = v
				}
			}
		}
	}

	if !sawAuth {
		return ProtocolInfo{}, fmt.Errorf("%w: PROTOCOLINFO has no AUTH line", ErrMalformedReply)
	}
	return info, nil
}

// splitFields splits on spaces that are outside double quotes.
func splitFields(s string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inQuotes:
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}
	return fields
}

// unquote decodes a control protocol QuotedString.
func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("%w: expected quoted string, got %q", ErrMalformedReply, s)
	}
	s = s[1 : len(s)-1]

	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// quote encodes s as a control protocol QuotedString.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// Authenticate picks an authentication method from PROTOCOLINFO and
// authenticates with it:
//   - HASHEDPASSWORD when a password is configured
//   - NULL when the control port is open
//   - COOKIE (or SAFECOOKIE, whose cookie file is also accepted by COOKIE)
//     by reading the advertised cookie file
func (c *ControlConn) Authenticate(password string) error {
	info, err := c.ProtocolInfo()
	if err != nil {
		return err
	}

	switch {
	case password != "" && info.HasMethod(authMethodPassword):
		_, err = c.command("AUTHENTICATE", "AUTHENTICATE "+quote(password))
		return err
	case info.HasMethod(authMethodNull):
		_, err = c.command("AUTHENTICATE", "AUTHENTICATE")
		return err
	case info.HasMethod(authMethodCookie) && info.CookieFile != "":
		cookie, err := os.ReadFile(info.CookieFile)
		if err != nil {
			return fmt.Errorf("failed to read control auth cookie: %w", err)
		}
		_, err = c.command("AUTHENTICATE", "AUTHENTICATE "+hex.EncodeToString(cookie))
		return err
	case password != "":
		// The daemon did not advertise HASHEDPASSWORD but a password was given;
		// let Tor decide.
		_, err = c.command("AUTHENTICATE", "AUTHENTICATE "+quote(password))
		return err
	default:
		return fmt.Errorf("%w: offered %v", ErrNoAuthMethod, info.AuthMethods)
	}
}

// Signal sends SIGNAL name, e.g. SignalNewIdentity.
func (c *ControlConn) Signal(name string) error {
	_, err := c.command("SIGNAL", "SIGNAL "+name)
	return err
}

// Quit ends the session politely. Tor answers "250 closing connection".
func (c *ControlConn) Quit() error {
	_, err := c.command("QUIT", "QUIT")
	return err
}
