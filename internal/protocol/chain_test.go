package protocol

import (
	"bytes"
	"testing"
)

// tagProtocol appends its tag on read and prepends it on write, recording
// the order it was called in.
type tagProtocol struct {
	Base
	tag    byte
	calls  *[]string
	signal Signal
	resets int
}

func (p *tagProtocol) Reset() { p.resets++ }

func (p *tagProtocol) ReadData(chunk []byte) Result {
	*p.calls = append(*p.calls, "read:"+string(p.tag))
	if p.signal != ReadyBytes {
		return Result{Signal: p.signal}
	}
	return Ready(append(append([]byte{}, chunk...), p.tag))
}

func (p *tagProtocol) WriteData(chunk []byte) []byte {
	*p.calls = append(*p.calls, "data:"+string(p.tag))
	return append([]byte{p.tag}, chunk...)
}

func (p *tagProtocol) WritePacket(pkt *Packet) *Packet {
	*p.calls = append(*p.calls, "packet:"+string(p.tag))
	pkt.Buffer()[0] = p.tag
	return pkt
}

// splitProtocol emits size-byte payloads and keeps the rest buffered.
type splitProtocol struct {
	Base
	size int
	data Accumulator
}

func (p *splitProtocol) Reset() { p.data.Reset() }

func (p *splitProtocol) Pending() int { return p.data.Len() }

func (p *splitProtocol) ReadData(chunk []byte) Result {
	p.data.Append(chunk)
	if p.data.Len() < p.size {
		return NeedMore()
	}
	out := p.data.Head(p.size)
	p.data.Drain(p.size)
	return Ready(out)
}

func TestChainReadOrder(t *testing.T) {
	var calls []string
	a := &tagProtocol{tag: 'a', calls: &calls}
	b := &tagProtocol{tag: 'b', calls: &calls}
	chain := NewChain(a, b)

	res := chain.Read([]byte("x"))
	if !res.IsReady() {
		t.Fatalf("signal = %v, want ready", res.Signal)
	}
	if string(res.Data) != "xab" {
		t.Errorf("payload = %q, want %q", res.Data, "xab")
	}
	if got := join(calls); got != "read:a,read:b" {
		t.Errorf("calls = %s", got)
	}
}

func TestChainReadStops(t *testing.T) {
	tests := []struct {
		name   string
		signal Signal
	}{
		{"need more data", NeedMoreData},
		{"disconnect", Disconnect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			a := &tagProtocol{tag: 'a', calls: &calls, signal: tt.signal}
			b := &tagProtocol{tag: 'b', calls: &calls}
			chain := NewChain(a, b)

			res := chain.Read([]byte("x"))
			if res.Signal != tt.signal {
				t.Errorf("signal = %v, want %v", res.Signal, tt.signal)
			}
			if got := join(calls); got != "read:a" {
				t.Errorf("later layers must not run, calls = %s", got)
			}
		})
	}
}

func TestChainEmptyPassesThrough(t *testing.T) {
	chain := NewChain()
	res := chain.Read([]byte{0x01})
	if !res.IsReady() || !bytes.Equal(res.Data, []byte{0x01}) {
		t.Errorf("Read() = %v, want ready 01", res)
	}
	if got := chain.Write(NewPacket("T", "P", []byte{0x02})); !bytes.Equal(got, []byte{0x02}) {
		t.Errorf("Write() = % X, want 02", got)
	}
}

func TestChainWriteOrder(t *testing.T) {
	var calls []string
	a := &tagProtocol{tag: 'a', calls: &calls}
	b := &tagProtocol{tag: 'b', calls: &calls}
	chain := NewChain(a, b)

	pkt := NewPacket("INST", "CMD", []byte("__"))
	wire := chain.Write(pkt)

	// b runs first on the packet, so a (closest to the wire) wins.
	if string(pkt.Buffer()) != "a_" {
		t.Errorf("packet buffer = %q, want %q", pkt.Buffer(), "a_")
	}
	if string(wire) != "aba_" {
		t.Errorf("wire = %q, want %q", wire, "aba_")
	}
	want := "packet:b,packet:a,data:b,data:a"
	if got := join(calls); got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
}

func TestChainReset(t *testing.T) {
	var calls []string
	a := &tagProtocol{tag: 'a', calls: &calls}
	b := &tagProtocol{tag: 'b', calls: &calls}
	chain := NewChain(a, nil, b)

	if chain.Len() != 2 {
		t.Errorf("Len() = %d, nil layers must be skipped", chain.Len())
	}
	chain.Reset()
	if a.resets != 1 || b.resets != 1 {
		t.Errorf("resets = %d,%d, want 1,1", a.resets, b.resets)
	}
}

func TestChainNextDrainsBufferedLayer(t *testing.T) {
	split := &splitProtocol{size: 2}
	stream, err := NewStreamProtocol(StreamConfig{DiscardLeadingBytes: 1})
	if err != nil {
		t.Fatalf("NewStreamProtocol() error = %v", err)
	}
	chain := NewChain(split, stream)

	res := chain.Read([]byte{0xA1, 0x01, 0xA2, 0x02, 0xA3})
	if !res.IsReady() || !bytes.Equal(res.Data, []byte{0x01}) {
		t.Fatalf("first = %v, want ready 01", res)
	}

	res, ok := chain.Next()
	if !ok || !res.IsReady() || !bytes.Equal(res.Data, []byte{0x02}) {
		t.Fatalf("second = %v ok=%v, want ready 02", res, ok)
	}

	if res, ok = chain.Next(); ok {
		t.Fatalf("third = %v, want nothing until more bytes arrive", res)
	}

	res = chain.Read([]byte{0x03})
	if !res.IsReady() || !bytes.Equal(res.Data, []byte{0x03}) {
		t.Fatalf("fourth = %v, want ready 03", res)
	}

	if _, ok := chain.Next(); ok {
		t.Error("Next() should report nothing buffered")
	}
}

func TestChainNextFeedsInnerLayerFromOuterBuffer(t *testing.T) {
	split := &splitProtocol{size: 1}
	stream, err := NewStreamProtocol(StreamConfig{SyncPattern: []byte{0xDE, 0xAD}})
	if err != nil {
		t.Fatalf("NewStreamProtocol() error = %v", err)
	}
	chain := NewChain(split, stream)

	res := chain.Read([]byte{0x00, 0xDE, 0xAD, 0x01})
	if res.Signal != NeedMoreData {
		t.Fatalf("Read() = %v, want need_more_data", res)
	}

	res, ok := chain.Next()
	if !ok || !res.IsReady() || !bytes.Equal(res.Data, []byte{0xDE, 0xAD}) {
		t.Fatalf("Next() = %v ok=%v, want ready DE AD", res, ok)
	}

	if res, ok = chain.Next(); ok {
		t.Fatalf("Next() = %v, want nothing until more bytes arrive", res)
	}
	if split.Pending() != 0 || stream.Pending() != 1 {
		t.Errorf("pending = %d,%d, want 0,1", split.Pending(), stream.Pending())
	}
}

func TestChainNextThroughThreeLayers(t *testing.T) {
	outer := &splitProtocol{size: 2}
	middle := &splitProtocol{size: 1}
	stream, err := NewStreamProtocol(StreamConfig{SyncPattern: []byte{0xDE, 0xAD}})
	if err != nil {
		t.Fatalf("NewStreamProtocol() error = %v", err)
	}
	chain := NewChain(outer, middle, stream)

	res := chain.Read([]byte{0xDE, 0xAD, 0x07, 0x08})
	if res.Signal != NeedMoreData {
		t.Fatalf("Read() = %v, want need_more_data", res)
	}
	res, ok := chain.Next()
	if !ok || !res.IsReady() || !bytes.Equal(res.Data, []byte{0xDE, 0xAD}) {
		t.Fatalf("Next() = %v ok=%v, want ready DE AD", res, ok)
	}
}

func TestBuiltChainRoundTrip(t *testing.T) {
	chain, err := BuildChain([]Spec{
		{Name: "stream", Args: []string{"4", "0x1ACFFC1D", "true"}},
	}, Options{})
	if err != nil {
		t.Fatalf("BuildChain() error = %v", err)
	}

	pkt := NewPacket("INST", "HEALTH_STATUS", []byte{0x08, 0x00, 0xC0, 0x00})
	wire := chain.Write(pkt)
	want := []byte{0x1A, 0xCF, 0xFC, 0x1D, 0x08, 0x00, 0xC0, 0x00}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire = % X, want % X", wire, want)
	}

	chain.Reset()
	res := chain.Read(append([]byte{0x00, 0x1A}, wire...))
	if !res.IsReady() || !bytes.Equal(res.Data, pkt.Buffer()) {
		t.Errorf("read back = %v, want % X", res, pkt.Buffer())
	}
}

func join(calls []string) string {
	out := ""
	for i, c := range calls {
		if i > 0 {
			out += ","
		}
		out += c
	}
	return out
}
