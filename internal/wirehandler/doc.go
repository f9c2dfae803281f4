// Package wirehandler implements the wire handler (C7): the reactor's
// ReactionHandler. It owns the peer table, drives outbound connects and
// inbound accepts through the Noise XK handshake, multiplexes gossip and
// Git streams over one encrypted TCP connection per peer, and hands Git
// fetches off to the worker pool.
package wirehandler
