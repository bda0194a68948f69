// Package stream provides the raw byte transports an interface reads from
// and writes to.
//
// Supported kinds:
//   - tcp: TCP client socket
//   - serial: serial/UART port (go.bug.st/serial)
//   - websocket: WebSocket client, one binary message per Read
//   - conn: an already-accepted connection handed over by a listener
//
// A stream knows nothing about packets; framing is the protocol chain's job.
// WebSocket and other message-oriented links deliver one datagram per Read,
// which is what the stream sync protocol expects.
package stream
