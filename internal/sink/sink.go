package sink

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/protocol"
	"go.uber.org/zap"
)

// Direction says which way a packet crossed the interface.
type Direction string

const (
	DirectionRead  Direction = "read"
	DirectionWrite Direction = "write"
)

// Record is the published form of a packet.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Interface string    `json:"interface"`
	Direction Direction `json:"direction"`
	Target    string    `json:"target"`
	Packet    string    `json:"packet"`
	Length    int       `json:"length"`
	Hex       string    `json:"hex"`
	ASCII     string    `json:"ascii"`

	data []byte
}

// NewRecord describes pkt. The timestamp is the packet's receive time, or
// now for outgoing packets.
func NewRecord(ifaceName string, dir Direction, pkt *protocol.Packet) Record {
	ts := pkt.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	data := pkt.Bytes()
	return Record{
		Timestamp: ts,
		Interface: ifaceName,
		Direction: dir,
		Target:    pkt.Target,
		Packet:    pkt.Name,
		Length:    len(data),
		Hex:       hex.EncodeToString(data),
		ASCII:     toASCII(data),
		data:      data,
	}
}

// Data returns the raw packet bytes.
func (r Record) Data() []byte {
	return r.data
}

// Sink consumes records.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// Multi fans records out to several sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti skips nil sinks.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Publish sends rec to every sink. One failing sink does not stop the
// others.
func (m *Multi) Publish(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler returns a packet handler that publishes packets crossing
// ifaceName in direction dir.
func (m *Multi) Handler(ifaceName string, dir Direction) func(ctx context.Context, pkt *protocol.Packet) error {
	return func(ctx context.Context, pkt *protocol.Packet) error {
		return m.Publish(ctx, NewRecord(ifaceName, dir, pkt))
	}
}

// Close closes every sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Sink. Close is a no-op.
type Func func(ctx context.Context, rec Record) error

// Publish calls f.
func (f Func) Publish(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// Close does nothing.
func (f Func) Close() error { return nil }

// Log returns a sink that logs each record at debug level.
func Log() Sink {
	return Func(func(ctx context.Context, rec Record) error {
		logging.Debug("Packet record",
			zap.String("interface", rec.Interface),
			zap.String("direction", string(rec.Direction)),
			zap.String("target", rec.Target),
			zap.String("packet", rec.Packet),
			zap.Int("length", rec.Length),
		)
		return nil
	})
}

// toASCII converts bytes to ASCII string (non-printable chars become '.')
func toASCII(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// token makes s safe as one NATS subject token or Redis key part.
func token(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
