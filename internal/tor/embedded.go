package tor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// ErrEmbeddedNotRunning is returned when the embedded daemon is used before Start.
var ErrEmbeddedNotRunning = errors.New("embedded Tor daemon is not running")

// EmbeddedTor manages a private Tor daemon started through tornago, for users
// who do not run Tor themselves. Both the SOCKS and the control listener are
// bound to OS-assigned ports, so identity rotation talks to this daemon only.
//
// Bootstrapping takes from several seconds up to a few minutes.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	controlAddr    string
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates a new embedded Tor manager. Call Start to launch it.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon and blocks until it has bootstrapped.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return ctx.Err()
	default:
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()
	return nil
}

// Stop shuts the daemon down. It is safe to call on an unstarted instance
// and more than once.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the SOCKS5 address, or "" when not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control port address, or "" when not running.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// IsRunning reports whether the daemon is running.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// NewTransport builds an anonymizing transport bound to this daemon's
// SOCKS and control listeners. The control address always points at this
// daemon, whatever opts say.
func (e *EmbeddedTor) NewTransport(timeout time.Duration, opts ...TransportOption) (*Transport, error) {
	if !e.IsRunning() {
		return nil, ErrEmbeddedNotRunning
	}

	client, err := NewClient(e.socksAddr, timeout)
	if err != nil {
		return nil, err
	}

	opts = append(opts, WithControlAddress(e.controlAddr))
	return NewTransport(client, opts...)
}
