package protocol

import "fmt"

// SyncState tracks whether the sync pattern has been located in the
// current accumulator window.
type SyncState int

const (
	Searching SyncState = iota
	Found
)

func (s SyncState) String() string {
	switch s {
	case Searching:
		return "searching"
	case Found:
		return "found"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StreamConfig configures a StreamProtocol. It is fixed at construction.
type StreamConfig struct {
	// DiscardLeadingBytes is stripped from the front of every payload,
	// typically to remove a sync field that is not part of the packet.
	DiscardLeadingBytes int
	// SyncPattern, when set, is searched for in the raw stream; bytes
	// before it are discarded.
	SyncPattern []byte
	// FillFields reconstructs the sync field on write.
	FillFields bool
}

// StreamOption configures optional StreamProtocol collaborators.
type StreamOption func(*StreamProtocol)

// WithReporter sets where discard diagnostics go.
func WithReporter(r DiscardReporter) StreamOption {
	return func(p *StreamProtocol) {
		if r != nil {
			p.reporter = r
		}
	}
}

// StreamProtocol locates packets in a raw byte stream by sync pattern and
// strips or restores leading framing bytes.
//
// Each resolved read is taken as exactly one packet: everything buffered
// once the pattern is located becomes the payload. That holds for
// datagram-style transports, or when an outer layer already enforces
// message boundaries. It is not a general stream reassembler.
type StreamProtocol struct {
	Base

	discardLeadingBytes int
	syncPattern         []byte
	fillFields          bool

	reporter DiscardReporter
	data     Accumulator
	state    SyncState

	// searchIterations counts passes of the last sync search, for tests.
	searchIterations int
}

// NewStreamProtocol creates a stream protocol in its reset state.
func NewStreamProtocol(cfg StreamConfig, opts ...StreamOption) (*StreamProtocol, error) {
	if cfg.DiscardLeadingBytes < 0 {
		return nil, ErrNegativeDiscard
	}

	p := &StreamProtocol{
		discardLeadingBytes: cfg.DiscardLeadingBytes,
		fillFields:          cfg.FillFields,
		reporter:            nopReporter{},
	}
	if len(cfg.SyncPattern) > 0 {
		p.syncPattern = make([]byte, len(cfg.SyncPattern))
		copy(p.syncPattern, cfg.SyncPattern)
	}
	for _, opt := range opts {
		opt(p)
	}

	p.Reset()
	return p, nil
}

// Config returns a copy of the construction-time configuration.
func (p *StreamProtocol) Config() StreamConfig {
	cfg := StreamConfig{
		DiscardLeadingBytes: p.discardLeadingBytes,
		FillFields:          p.fillFields,
	}
	if p.syncPattern != nil {
		cfg.SyncPattern = make([]byte, len(p.syncPattern))
		copy(cfg.SyncPattern, p.syncPattern)
	}
	return cfg
}

// State returns the current sync state.
func (p *StreamProtocol) State() SyncState {
	return p.state
}

// Pending returns the number of buffered, unresolved bytes.
func (p *StreamProtocol) Pending() int {
	return p.data.Len()
}

// Reset empties the accumulator and returns to Searching.
func (p *StreamProtocol) Reset() {
	p.data.Reset()
	p.state = Searching
}

// ReadData appends chunk and, once the sync pattern is located, returns
// the whole buffer as one payload with the leading bytes stripped.
func (p *StreamProtocol) ReadData(chunk []byte) Result {
	p.data.Append(chunk)

	if !p.syncToPattern() {
		return NeedMore()
	}

	payload := p.data.Take()
	p.state = Searching

	if p.discardLeadingBytes > 0 {
		if p.discardLeadingBytes >= len(payload) {
			payload = payload[:0]
		} else {
			payload = payload[p.discardLeadingBytes:]
		}
	}
	return Ready(payload)
}

// syncToPattern runs the sync search. It returns false when more data is
// needed. Every pass that does not return shortens the accumulator, so the
// loop runs at most Len()+1 times.
func (p *StreamProtocol) syncToPattern() bool {
	p.searchIterations = 0
	if p.syncPattern == nil || p.state != Searching {
		return true
	}

	for {
		p.searchIterations++

		if p.data.Len() < len(p.syncPattern) {
			return false
		}

		index := p.data.IndexByte(p.syncPattern[0])
		if index < 0 {
			n := p.data.Len()
			p.data.Drain(n)
			p.reportDiscard(n, false)
			return false
		}

		// Keep the partial candidate; it is found again on the next call.
		if p.data.Len() < index+len(p.syncPattern) {
			return false
		}

		if p.data.MatchAt(index, p.syncPattern) {
			if index != 0 {
				p.data.Drain(index)
				p.reportDiscard(index, true)
			}
			p.state = Found
			return true
		}

		// Drop everything up to and including the false first byte.
		p.data.Drain(index + 1)
		p.reportDiscard(index+1, false)
	}
}

func (p *StreamProtocol) reportDiscard(length int, found bool) {
	p.reporter.ReportDiscard(DiscardEvent{
		Length:  length,
		Found:   found,
		Leading: p.data.Head(leadingBytes),
	})
}

// WritePacket fills the sync field inside the packet buffer when the sync
// bytes are part of the packet (nothing is discarded on read).
func (p *StreamProtocol) WritePacket(pkt *Packet) *Packet {
	if p.fillFields && p.syncPattern != nil && p.discardLeadingBytes == 0 {
		copy(pkt.Buffer(), p.syncPattern)
	}
	return pkt
}

// WriteData restores the leading bytes stripped on read, with the sync
// pattern written over them when one is configured.
func (p *StreamProtocol) WriteData(chunk []byte) []byte {
	if p.fillFields && p.discardLeadingBytes > 0 {
		out := make([]byte, p.discardLeadingBytes+len(chunk))
		if p.syncPattern != nil {
			copy(out[:p.discardLeadingBytes], p.syncPattern)
		}
		copy(out[p.discardLeadingBytes:], chunk)
		chunk = out
	}
	return p.Base.WriteData(chunk)
}

func (p *StreamProtocol) String() string {
	return fmt.Sprintf("StreamProtocol{discard=%d, sync=%s, fill=%v}",
		p.discardLeadingBytes, FormatSyncPattern(p.syncPattern), p.fillFields)
}
