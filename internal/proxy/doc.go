// Package proxy implements the socksd client-facing server.
//
// A Server accepts client connections, reads the version byte and hands the
// connection to the SOCKS4 or SOCKS5 Handler, which performs the handshake,
// opens or accepts the remote connection, and relays bytes with Tunnel.
// Sessions run on a Pool; a Supervisor keeps one accept loop per configured
// listen address.
package proxy
