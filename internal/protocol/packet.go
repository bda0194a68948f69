package protocol

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Packet is a telemetry or command packet travelling through an interface.
// The chain may overwrite bytes of its buffer in place but never resizes it.
type Packet struct {
	Target     string    // Owning target (e.g. "INST")
	Name       string    // Packet name within the target (e.g. "HEALTH_STATUS")
	ReceivedAt time.Time // Zero for outgoing packets
	buffer     []byte
}

// NewPacket creates a packet that owns a copy of data.
func NewPacket(target, name string, data []byte) *Packet {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Packet{
		Target: target,
		Name:   name,
		buffer: buf,
	}
}

// Buffer returns the packet's own buffer for in-place field writes.
func (p *Packet) Buffer() []byte {
	return p.buffer
}

// Bytes returns a copy of the packet buffer.
func (p *Packet) Bytes() []byte {
	out := make([]byte, len(p.buffer))
	copy(out, p.buffer)
	return out
}

// Len returns the buffer length.
func (p *Packet) Len() int {
	return len(p.buffer)
}

// Hex returns the buffer as a lower-case hex string.
func (p *Packet) Hex() string {
	return hex.EncodeToString(p.buffer)
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{target=%s, name=%s, len=%d}", p.Target, p.Name, len(p.buffer))
}
