package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Transport performs outbound HTTP requests, with or without proxy routing.
//
// A Transport is selected once per run, held for the run's duration and
// never reused across runs.
type Transport interface {
	// Get issues a single GET request. Any transport error or non-2xx status
	// is returned as an error and logged; on success the caller owns the
	// response body.
	Get(ctx context.Context, url string) (*http.Response, error)

	// HTTPClient returns the client that routes requests the same way Get does.
	// Higher level API clients are built on top of it.
	HTTPClient() *http.Client

	// Name returns a short name for logs and reports ("direct", "tor").
	Name() string
}

// ErrUnexpectedStatus is matched by every *StatusError.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// StatusError reports a response with a non-2xx status code.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Is makes errors.Is(err, ErrUnexpectedStatus) succeed.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Get performs the shared GET semantics for every Transport implementation.
// name is used as the "transport" log attribute.
func Get(ctx context.Context, client *http.Client, logger *slog.Logger, name, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Error("GET request failed", "transport", name, "url", url, "error", err)
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("GET request failed", "transport", name, "url", url, "error", err)
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // best effort drain
		_ = resp.Body.Close()
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
		logger.Error("GET request failed", "transport", name, "url", url, "status", resp.StatusCode)
		return nil, statusErr
	}

	logger.Info("GET request succeeded", "transport", name, "url", url, "status", resp.StatusCode)
	return resp, nil
}

// Direct is a Transport without any proxy.
type Direct struct {
	client *http.Client
	logger *slog.Logger
}

// NewDirect creates a Direct transport with the given request timeout.
// A nil logger discards log output.
func NewDirect(timeout time.Duration, logger *slog.Logger) *Direct {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	base, ok := http.DefaultTransport.(*http.Transport)
	var rt http.RoundTripper = http.DefaultTransport
	if ok {
		clone := base.Clone()
		// Direct traffic never goes through an environment proxy: the user
		// asked for either a plain connection or Tor.
		clone.Proxy = nil
		rt = clone
	}

	return &Direct{
		client: &http.Client{Transport: rt, Timeout: timeout},
		logger: logger,
	}
}

// Get implements Transport.
func (d *Direct) Get(ctx context.Context, url string) (*http.Response, error) {
	return Get(ctx, d.client, d.logger, d.Name(), url)
}

// HTTPClient implements Transport.
func (d *Direct) HTTPClient() *http.Client {
	return d.client
}

// Name implements Transport.
func (d *Direct) Name() string {
	return "direct"
}

// WithBearerToken returns a copy of client whose requests carry the token
// as an "Authorization: Bearer" header. The original client is untouched,
// so unauthenticated probes (the connectivity gate) keep using it.
func WithBearerToken(client *http.Client, token string) *http.Client {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	authed := *client
	authed.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		Base:   base,
	}
	return &authed
}
