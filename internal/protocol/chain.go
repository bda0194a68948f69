package protocol

// Chain is an ordered stack of protocols over one connection. Reads run in
// registration order; writes run in reverse so the layer closest to the wire
// has the final say.
type Chain struct {
	protocols []Protocol
}

// NewChain creates a chain from protocols in read order.
func NewChain(protocols ...Protocol) *Chain {
	c := &Chain{}
	for _, p := range protocols {
		c.Add(p)
	}
	return c
}

// Add appends a protocol as the innermost layer.
func (c *Chain) Add(p Protocol) {
	if p != nil {
		c.protocols = append(c.protocols, p)
	}
}

// Len returns the number of layers.
func (c *Chain) Len() int {
	return len(c.protocols)
}

// Protocols returns the layers in read order.
func (c *Chain) Protocols() []Protocol {
	out := make([]Protocol, len(c.protocols))
	copy(out, c.protocols)
	return out
}

// Reset resets every layer. Call it on every connect.
func (c *Chain) Reset() {
	for _, p := range c.protocols {
		p.Reset()
	}
}

// Read feeds newly read transport bytes through the chain. A NeedMoreData
// result means the caller must read the transport again and call Read with
// the new bytes. An empty chain passes chunk through unchanged.
func (c *Chain) Read(chunk []byte) Result {
	return c.readFrom(0, chunk)
}

// Next re-runs the chain on bytes still buffered inside layers, without a
// transport read. Buffered layers are tried innermost first. A layer whose
// re-run ends in NeedMoreData but drained some of its buffer may have fed
// the layers inside it, so the walk restarts from the innermost layer. ok is
// false only when no buffered layer can make progress; res is then
// meaningless and the caller must read the transport.
func (c *Chain) Next() (res Result, ok bool) {
	for i := len(c.protocols) - 1; i >= 0; i-- {
		b, isBuffered := c.protocols[i].(Buffered)
		if !isBuffered {
			continue
		}
		before := b.Pending()
		if before == 0 {
			continue
		}
		res = c.readFrom(i, nil)
		if res.Signal != NeedMoreData {
			return res, true
		}
		if b.Pending() < before {
			i = len(c.protocols)
		}
	}
	return Result{}, false
}

func (c *Chain) readFrom(start int, chunk []byte) Result {
	data := chunk
	for _, p := range c.protocols[start:] {
		res := p.ReadData(data)
		if res.Signal != ReadyBytes {
			return res
		}
		data = res.Data
	}
	return Ready(data)
}

// WritePacket gives every layer, outermost last, a chance to mutate pkt.
func (c *Chain) WritePacket(pkt *Packet) *Packet {
	for i := len(c.protocols) - 1; i >= 0; i-- {
		pkt = c.protocols[i].WritePacket(pkt)
	}
	return pkt
}

// WriteData wraps data through every layer, outermost last.
func (c *Chain) WriteData(data []byte) []byte {
	for i := len(c.protocols) - 1; i >= 0; i-- {
		data = c.protocols[i].WriteData(data)
	}
	return data
}

// Write runs the full write path for pkt and returns the bytes for the
// transport.
func (c *Chain) Write(pkt *Packet) []byte {
	pkt = c.WritePacket(pkt)
	return c.WriteData(pkt.Bytes())
}
