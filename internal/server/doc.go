// Package server accepts device connections and runs an interface on each.
//
// Some links are initiated by the far end: a radio bridge or a simulator
// dials the ground station instead of the other way round. The listener
// accepts those connections over plain TCP, TCP with TLS, or WebSocket, and
// gives every connection its own interface and therefore its own protocol
// chain. No accumulator or sync state is ever shared between connections.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    Port:      7779,
//	    Kind:      stream.KindTCP,
//	    Interface: iface.Config{Name: "INST_INT", Protocols: specs},
//	    Advertise: true,
//	}, handler)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until ctx is cancelled, then shuts down: the listener is
// closed, every active connection is disconnected, and in-flight handlers
// are given time to return.
//
// # Commands
//
// Broadcast writes one packet through the write path of every active
// connection. Each connection gets its own copy because fill-field
// protocols modify the packet in place.
package server
