// Package sink delivers packets from interfaces to the rest of the ground
// segment.
//
// Every packet read from, or written to, an interface becomes a Record and is
// handed to each configured Sink:
//   - NATS: one JSON message per packet on
//     "<prefix>.tlm.<target>.<packet>" (reads) or
//     "<prefix>.sent.<target>.<packet>" (writes), plus "<prefix>.tlm.all"
//   - Redis: a current-value table holding the latest raw buffer, receive
//     time and count under "<target>__<packet>__<item>" keys
//   - Capture: JSON lines appended to a file for offline analysis
//
// The NATS side also carries commands the other way: SubscribeCommands
// listens on "<prefix>.cmd.<interface>" and writes each decoded command
// through the interface's protocol chain.
package sink
