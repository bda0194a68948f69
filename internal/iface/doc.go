// Package iface connects a byte stream to a protocol chain.
//
// An Interface owns one stream and one chain. Connect resets the chain so
// every connection starts with an empty accumulator and a fresh sync search.
// ReadPacket pulls bytes from the stream until the chain yields a payload,
// draining buffered protocols before touching the stream again. WritePacket
// runs the chain's write path and sends the result; concurrent writers are
// serialized.
//
// Run wraps both into the long-lived loop used by the CLI:
//
//	itf, _ := iface.New(cfg, stream.NewTCP(streamCfg))
//	err := itf.Run(ctx, func(ctx context.Context, pkt *protocol.Packet) error {
//		fmt.Println(pkt)
//		return nil
//	})
//
// Received payloads are named by the first configured PacketDef whose id
// bytes match at its offset. Anything else is named UNKNOWN.
package iface
