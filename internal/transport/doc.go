// Package transport carries events between peers.
//
// Ownership boundary:
// - the [type][length][payload] frame codec
// - TCP channels (passive listener, lazily connected client)
// - the descriptor registry and readiness multiplexer
//
// The frame has no magic, version, or checksum, and integers are written in
// host byte order. Every peer in a deployment must share one architecture.
package transport
