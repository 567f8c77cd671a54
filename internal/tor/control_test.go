package tor

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeControl is a scripted Tor control port.
type fakeControl struct {
	// methods is the METHODS value of PROTOCOLINFO.
	methods string
	// cookieFile, when set, is advertised as COOKIEFILE.
	cookieFile string
	// accept is the AUTHENTICATE argument that succeeds ("" for NULL auth).
	accept string
	// signalReply overrides the reply to SIGNAL.
	signalReply string

	mu       sync.Mutex
	commands []string
	sessions int
}

func (f *fakeControl) start(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start fake control port: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	return listener.Addr().String()
}

func (f *fakeControl) serve(conn net.Conn) {
	defer conn.Close()

	f.mu.Lock()
	f.sessions++
	f.mu.Unlock()

	r := bufio.NewReader(conn)
	authenticated := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		f.mu.Lock()
		f.commands = append(f.commands, line)
		f.mu.Unlock()

		keyword, arg, _ := strings.Cut(line, " ")
		var reply string
		switch keyword {
		case "PROTOCOLINFO":
			auth := "250-AUTH METHODS=" + f.methods
			if f.cookieFile != "" {
				auth += " COOKIEFILE=" + quote(f.cookieFile)
			}
			reply = "250-PROTOCOLINFO 1\r\n" + auth + "\r\n250-VERSION Tor=\"0.4.8.10\"\r\n250 OK\r\n"
		case "AUTHENTICATE":
			if arg == f.accept {
				authenticated = true
				reply = "250 OK\r\n"
			} else {
				reply = "515 Authentication failed: Password did not match HashedControlPassword value from configuration\r\n"
			}
		case "SIGNAL":
			switch {
			case !authenticated:
				reply = "514 Authentication required.\r\n"
			case f.signalReply != "":
				reply = f.signalReply + "\r\n"
			default:
				reply = "250 OK\r\n"
			}
		case "QUIT":
			_, _ = fmt.Fprint(conn, "250 closing connection\r\n")
			return
		default:
			reply = "510 Unrecognized command\r\n"
		}
		if _, err := fmt.Fprint(conn, reply); err != nil {
			return
		}
	}
}

func (f *fakeControl) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeControl) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func dialFake(t *testing.T, addr string) *ControlConn {
	t.Helper()

	conn, err := DialControl(context.Background(), addr, 5*time.Second)
	if err != nil {
		t.Fatalf("DialControl failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestParseProtocolInfo(t *testing.T) {
	t.Parallel()

	t.Run("parses methods, cookie file and version", func(t *testing.T) {
		t.Parallel()

		msg := "PROTOCOLINFO 1\nAUTH METHODS=COOKIE,SAFECOOKIE COOKIEFILE=\"/run/tor/control.authcookie\"\nVERSION Tor=\"0.4.8.10\"\nOK"
		info, err := parseProtocolInfo(msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !info.HasMethod("COOKIE") || !info.HasMethod("safecookie") {
			t.Errorf("unexpected methods: %v", info.AuthMethods)
		}
		if info.HasMethod("NULL") {
			t.Error("NULL must not be reported")
		}
		if info.CookieFile != "/run/tor/control.authcookie" {
			t.Errorf("CookieFile = %q", info.CookieFile)
		}
		if info.TorVersion != "0.4.8.10" {
			t.Errorf("TorVersion = %q", info.TorVersion)
		}
	})

	t.Run("cookie path with spaces and escapes", func(t *testing.T) {
		t.Parallel()

		msg := "PROTOCOLINFO 1\nAUTH METHODS=COOKIE COOKIEFILE=\"C:\\\\Tor Data\\\\cookie\"\nOK"
		info, err := parseProtocolInfo(msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.CookieFile != `C:\Tor Data\cookie` {
			t.Errorf("CookieFile = %q", info.CookieFile)
		}
	})

	t.Run("missing AUTH line is malformed", func(t *testing.T) {
		t.Parallel()

		_, err := parseProtocolInfo("PROTOCOLINFO 1\nOK")
		if !errors.Is(err, ErrMalformedReply) {
			t.Errorf("expected ErrMalformedReply, got %v", err)
		}
	})

	t.Run("unquoted cookie file is malformed", func(t *testing.T) {
		t.Parallel()

		_, err := parseProtocolInfo("PROTOCOLINFO 1\nAUTH METHODS=COOKIE COOKIEFILE=/tmp/cookie\nOK")
		if !errors.Is(err, ErrMalformedReply) {
			t.Errorf("expected ErrMalformedReply, got %v", err)
		}
	})
}

func TestQuoteRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "plain", `with "quotes"`, `back\slash`, "sp ace"} {
		got, err := unquote(quote(s))
		if err != nil {
			t.Fatalf("unquote(quote(%q)) failed: %v", s, err)
		}
		if got != s {
			t.Errorf("unquote(quote(%q)) = %q", s, got)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("hashed password", func(t *testing.T) {
		t.Parallel()

		fake := &fakeControl{methods: "HASHEDPASSWORD", accept: `"s3cret"`}
		conn := dialFake(t, fake.start(t))

		if err := conn.Authenticate("s3cret"); err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
	})

	t.Run("null method", func(t *testing.T) {
		t.Parallel()

		fake := &fakeControl{methods: "NULL", accept: ""}
		conn := dialFake(t, fake.start(t))

		if err := conn.Authenticate(""); err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		cmds := fake.received()
		if len(cmds) != 2 || cmds[1] != "AUTHENTICATE" {
			t.Errorf("unexpected commands: %v", cmds)
		}
	})

	t.Run("cookie file", func(t *testing.T) {
		t.Parallel()

		cookie := []byte("0123456789abcdef0123456789abcdef")
		cookiePath := filepath.Join(t.TempDir(), "control_auth_cookie")
		if err := os.WriteFile(cookiePath, cookie, 0o600); err != nil {
			t.Fatalf("failed to write cookie: %v", err)
		}

		fake := &fakeControl{
			methods:    "COOKIE,SAFECOOKIE",
			cookieFile: cookiePath,
			accept:     hex.EncodeToString(cookie),
		}
		conn := dialFake(t, fake.start(t))

		if err := conn.Authenticate(""); err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
	})

	t.Run("missing cookie file", func(t *testing.T) {
		t.Parallel()

		fake := &fakeControl{
			methods:    "COOKIE",
			cookieFile: filepath.Join(t.TempDir(), "missing"),
		}
		conn := dialFake(t, fake.start(t))

		if err := conn.Authenticate(""); err == nil {
			t.Fatal("expected error for missing cookie file")
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		t.Parallel()

		fake := &fakeControl{methods: "HASHEDPASSWORD", accept: `"right"`}
		conn := dialFake(t, fake.start(t))

		err := conn.Authenticate("wrong")
		var ctrlErr *ControlError
		if !errors.As(err, &ctrlErr) {
			t.Fatalf("expected ControlError, got %v", err)
		}
		if ctrlErr.Code != 515 || ctrlErr.Command != "AUTHENTICATE" {
			t.Errorf("unexpected ControlError: %+v", ctrlErr)
		}
		if strings.Contains(err.Error(), "wrong") {
			t.Errorf("error must not contain the password: %v", err)
		}
	})

	t.Run("no usable method", func(t *testing.T) {
		t.Parallel()

		fake := &fakeControl{methods: "HASHEDPASSWORD"}
		conn := dialFake(t, fake.start(t))

		if err := conn.Authenticate(""); !errors.Is(err, ErrNoAuthMethod) {
			t.Errorf("expected ErrNoAuthMethod, got %v", err)
		}
	})
}

func TestSignalAndQuit(t *testing.T) {
	t.Parallel()

	fake := &fakeControl{methods: "NULL"}
	conn := dialFake(t, fake.start(t))

	if err := conn.Authenticate(""); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if err := conn.Signal(SignalNewIdentity); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if err := conn.Quit(); err != nil {
		t.Fatalf("Quit failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	cmds := fake.received()
	want := []string{"PROTOCOLINFO 1", "AUTHENTICATE", "SIGNAL NEWNYM", "QUIT"}
	if strings.Join(cmds, "|") != strings.Join(want, "|") {
		t.Errorf("commands = %v, expected %v", cmds, want)
	}
}

func TestDialControl(t *testing.T) {
	t.Parallel()

	t.Run("invalid address", func(t *testing.T) {
		t.Parallel()

		_, err := DialControl(context.Background(), "nope", time.Second)
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})

	t.Run("unreachable port", func(t *testing.T) {
		t.Parallel()

		_, err := DialControl(context.Background(), "127.0.0.1:59995", time.Second)
		if err == nil {
			t.Error("expected error for unreachable control port")
		}
	})
}
