package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 handshake probe in CheckConnection.
const checkProxyTimeout = 2 * time.Second

// Client provides SOCKS5 connectivity through a running Tor daemon.
//
// Constructing a Client never touches the network; call CheckConnection
// to verify that Tor is actually listening.
type Client struct {
	// proxyAddress is the Tor SOCKS5 proxy address in "host:port" format.
	proxyAddress string

	// dialer is the SOCKS5 dialer, created once and shared by all connections.
	dialer proxy.Dialer

	// timeout is the request timeout of HTTP clients created by this client.
	timeout time.Duration
}

// NewClient creates a new Tor client with the given proxy address and timeout.
// The proxyAddress must be in "host:port" format (e.g., "127.0.0.1:9050").
func NewClient(proxyAddress string, timeout time.Duration) (*Client, error) {
	if !isValidAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	// Tor's SOCKS port does not require authentication.
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		timeout:      timeout,
	}, nil
}

// isValidAddress checks that address is "host:port" with a non-empty host
// and a port in 1..65535. IPv6 literals are not accepted.
func isValidAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return false
	}
	for _, c := range host {
		if c == ':' || c == '[' || c == ']' {
			return false
		}
	}
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return portNum >= 1 && portNum <= 65535
}

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5ProbeHost is a syntactically valid but non-existent onion address.
	// Tor answers a CONNECT to it with a SOCKS5 failure reply, which is all the
	// probe needs; no real service is ever contacted.
	socks5ProbeHost = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
)

// CheckConnection verifies that the proxy speaks SOCKS5 without
// authentication and answers CONNECT requests for onion hosts.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, "no authentication".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	// CONNECT request: version, cmd, reserved, addr type, len, host, port.
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(socks5ProbeHost)),
	}
	connectReq = append(connectReq, []byte(socks5ProbeHost)...)
	connectReq = append(connectReq, 0x00, 0x50)

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// Any reply code is fine; Tor answers 0x01 or 0x04 for unknown onions.
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewHTTPClient creates an HTTP client that routes every request through Tor.
//
// Host names are resolved by Tor (socks5h semantics), so no DNS query
// leaves the machine. TLS certificates are verified: the GitHub API is a
// clearnet HTTPS endpoint.
func (c *Client) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:       nil,
		DialContext: c.DialContext,
		// Each connection is a Tor circuit stream; keep the pool small.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 30 * time.Second,
		ForceAttemptHTTP2:   true,
		// Compression allows size based side channels on anonymized traffic.
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
}

// Dial establishes a TCP connection through Tor to the given address.
func (c *Client) Dial(network, address string) (net.Conn, error) {
	return c.dialer.Dial(network, address)
}

// DialContext establishes a TCP connection through Tor with context support.
//
// When the dialer does not implement proxy.ContextDialer, the dial runs in a
// goroutine and a cancelled context returns early while the underlying
// attempt may continue briefly.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if result := <-resultCh; result.conn != nil {
				_ = result.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// Timeout returns the request timeout of HTTP clients built by this client.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}
