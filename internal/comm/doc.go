// Package comm connects the object layer to remote peers.
//
// A Dispatcher owns the multiplexer, the descriptor registry, and the table
// of async requests. Pumping it services one ready endpoint: the listener
// (accept), a Peer (a response to one of our requests), or an inbound
// channel (a request for the local Server). Handlers turn object-layer
// CommRequests into request events for one or more Peers and fold the
// responses back.
package comm
