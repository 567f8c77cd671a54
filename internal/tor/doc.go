// Package tor provides the anonymizing transport of ghprofile.
//
// It has three parts:
//   - Client: a SOCKS5 dialer (golang.org/x/net/proxy) and HTTP clients that
//     route every request through Tor, plus a SOCKS5 handshake probe
//   - ControlConn and Transport.RotateIdentity: a minimal implementation of
//     the Tor control protocol (PROTOCOLINFO, AUTHENTICATE, SIGNAL NEWNYM,
//     QUIT) used to request a new exit identity
//   - EmbeddedTor: an optional private daemon started through tornago
//
// Components receive a *Transport by injection; nothing in this package keeps
// global state.
package tor
