package protocol

// Protocol is one layer of a protocol chain. Implementations hold
// per-connection state and must never be shared between connections.
type Protocol interface {
	// Reset clears per-connection state back to construction defaults.
	// It must be idempotent.
	Reset()

	// ReadData consumes newly arrived bytes.
	ReadData(chunk []byte) Result

	// WriteData transforms outgoing bytes before they are handed to the next
	// layer outward, or the transport if this layer is outermost.
	WriteData(chunk []byte) []byte

	// WritePacket may mutate the outgoing packet's buffer in place before it
	// is serialized.
	WritePacket(pkt *Packet) *Packet
}

// Buffered is implemented by protocols that can hold bytes beyond the payload
// they just emitted. The chain re-runs such a layer before the next transport
// read.
type Buffered interface {
	Pending() int
}

// Base provides the default no-op behavior for the optional parts of
// Protocol. Embed it and override what the layer needs.
type Base struct{}

// Reset does nothing.
func (Base) Reset() {}

// WriteData returns chunk unchanged.
func (Base) WriteData(chunk []byte) []byte {
	return chunk
}

// WritePacket returns pkt unchanged.
func (Base) WritePacket(pkt *Packet) *Packet {
	return pkt
}
