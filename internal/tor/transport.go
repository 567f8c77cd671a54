package tor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nao1215/ghprofile/internal/transport"
)

// DefaultControlAddress is the standard Tor control port address.
const DefaultControlAddress = "127.0.0.1:9051"

// DefaultControlTimeout bounds one identity rotation exchange.
const DefaultControlTimeout = 10 * time.Second

// Transport is the anonymizing transport: every request is routed through
// the Tor SOCKS5 proxy, and RotateIdentity asks Tor for a new exit circuit
// over the separate control port.
//
// Rotation is never triggered by Get. Callers rotate explicitly after a batch
// of dependent requests, so that e.g. reading a document's version token and
// writing the document back appear to come from the same identity.
type Transport struct {
	client     *Client
	httpClient *http.Client
	logger     *slog.Logger

	controlAddress  string
	controlPassword string
	controlTimeout  time.Duration

	// rotateSem serializes control sessions; the control protocol is not
	// designed for concurrent sessions.
	rotateSem *semaphore.Weighted
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithControlAddress sets the control port address ("host:port").
func WithControlAddress(address string) TransportOption {
	return func(t *Transport) {
		t.controlAddress = address
	}
}

// WithControlPassword sets the password used for HASHEDPASSWORD authentication.
func WithControlPassword(password string) TransportOption {
	return func(t *Transport) {
		t.controlPassword = password
	}
}

// WithControlTimeout bounds each rotation exchange.
func WithControlTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) {
		t.controlTimeout = timeout
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates the anonymizing transport on top of client.
func NewTransport(client *Client, opts ...TransportOption) (*Transport, error) {
	t := &Transport{
		client:         client,
		httpClient:     client.NewHTTPClient(),
		controlAddress: DefaultControlAddress,
		controlTimeout: DefaultControlTimeout,
		rotateSem:      semaphore.NewWeighted(1),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	if !isValidAddress(t.controlAddress) {
		return nil, fmt.Errorf("control address %q: %w", t.controlAddress, ErrInvalidProxyAddress)
	}
	if t.controlTimeout <= 0 {
		t.controlTimeout = DefaultControlTimeout
	}

	return t, nil
}

// Get implements transport.Transport. The request goes through Tor.
func (t *Transport) Get(ctx context.Context, url string) (*http.Response, error) {
	return transport.Get(ctx, t.httpClient, t.logger, t.Name(), url)
}

// HTTPClient implements transport.Transport.
func (t *Transport) HTTPClient() *http.Client {
	return t.httpClient
}

// Name implements transport.Transport.
func (t *Transport) Name() string {
	return "tor"
}

// Client returns the underlying SOCKS5 client.
func (t *Transport) Client() *Client {
	return t.client
}

// ControlAddress returns the configured control port address.
func (t *Transport) ControlAddress() string {
	return t.controlAddress
}

// RotateIdentity asks Tor for a new identity: it opens a short-lived control
// connection, authenticates, sends SIGNAL NEWNYM and closes the connection.
//
// It makes exactly one attempt. The connection is closed on every path.
// Failures are logged and returned wrapped in ErrProxyControl; they are
// never fatal to the caller.
func (t *Transport) RotateIdentity(ctx context.Context) error {
	if err := t.rotateSem.Acquire(ctx, 1); err != nil {
		return t.rotationFailed(err)
	}
	defer t.rotateSem.Release(1)

	conn, err := DialControl(ctx, t.controlAddress, t.controlTimeout)
	if err != nil {
		return t.rotationFailed(err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			t.logger.Debug("failed to close control connection", "error", err)
		}
	}()

	if err := conn.Authenticate(t.controlPassword); err != nil {
		return t.rotationFailed(err)
	}
	if err := conn.Signal(SignalNewIdentity); err != nil {
		return t.rotationFailed(err)
	}
	if err := conn.Quit(); err != nil {
		// The signal was accepted; a failed QUIT does not undo it.
		t.logger.Debug("control QUIT failed", "error", err)
	}

	t.logger.Info("Tor circuit renewed: new identity requested", "control", t.controlAddress)
	return nil
}

// rotationFailed logs err and wraps it in ErrProxyControl.
func (t *Transport) rotationFailed(err error) error {
	t.logger.Error("failed to renew Tor identity", "control", t.controlAddress, "error", err)
	return fmt.Errorf("%w: %w", ErrProxyControl, err)
}

var _ transport.Transport = (*Transport)(nil)
