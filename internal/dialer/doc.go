// Package dialer opens the server side of proxied connections.
//
// Every outbound socket, whether dialed for CONNECT or listening for BIND,
// is bound to one of the configured outgoing source addresses. SelectSource
// picks that address: an exact match for the target first, then the first
// address of the same family, then the first configured address.
package dialer
