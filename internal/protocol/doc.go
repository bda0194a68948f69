// Package protocol implements the protocol chain that frames a raw link byte
// stream into packets and turns outgoing packets back into raw bytes.
//
// # Chain Overview
//
// A Chain is an ordered list of Protocol layers bound to one connection:
//   - Read path: transport bytes -> layer 0 -> layer 1 -> ... -> payload
//   - Write path: packet -> WritePacket (innermost first) -> WriteData
//     (innermost first) -> transport
//
// Each read step returns a Result tagged with a Signal:
//   - ReadyBytes: Data holds a payload for the next layer (or the caller)
//   - NeedMoreData: read the transport again and call Read with the new bytes
//   - Disconnect: tear the connection down; Reset before reuse
//
// # Stream Protocol
//
// StreamProtocol searches the stream for a sync pattern, discards bytes
// before it, and strips a configured number of leading bytes from each
// payload. On write it restores the stripped bytes, or fills the sync field
// inside the packet buffer when the sync bytes belong to the packet.
//
// Discards are never errors. They are reported to a DiscardReporter with
// the length, whether the pattern was found, and the six bytes that follow.
//
// # Usage Example
//
//	chain, err := protocol.BuildChain([]protocol.Spec{
//	    {Name: "stream", Args: []string{"4", "0x1ACFFC1D", "true"}},
//	}, protocol.Options{Reporter: protocol.ZapReporter{Interface: "INST_INT"}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res := chain.Read(chunk)
//	switch res.Signal {
//	case protocol.ReadyBytes:
//	    handle(res.Data)
//	case protocol.NeedMoreData:
//	    // read again
//	case protocol.Disconnect:
//	    // close the stream
//	}
//
// # Thread Safety
//
// Protocols and chains are not safe for concurrent use. A chain belongs to
// one connection; its owner must serialize Read, Next, Reset and Write
// (iface.Interface does this for command writes arriving on other
// goroutines). The registry used by New and BuildChain is safe.
package protocol
