package protocol

import (
	"fmt"
	"strings"

	"github.com/muurk/groundlink/internal/logging"
)

// leadingBytes is how many post-discard bytes a DiscardEvent carries.
const leadingBytes = 6

// DiscardEvent describes bytes dropped while searching for a sync pattern.
type DiscardEvent struct {
	Length  int    // Number of bytes dropped
	Found   bool   // Whether the pattern was located by this discard
	Leading []byte // Up to six bytes at the head of the accumulator afterwards
}

// LeadingHex formats Leading as six "0x%02X" values, zero-filled.
func (e DiscardEvent) LeadingHex() string {
	parts := make([]string, leadingBytes)
	for i := range parts {
		var b byte
		if i < len(e.Leading) {
			b = e.Leading[i]
		}
		parts[i] = fmt.Sprintf("0x%02X", b)
	}
	return strings.Join(parts, " ")
}

// DiscardReporter receives discard diagnostics from a stream protocol.
type DiscardReporter interface {
	ReportDiscard(ev DiscardEvent)
}

// DiscardReporterFunc adapts a function to DiscardReporter.
type DiscardReporterFunc func(ev DiscardEvent)

// ReportDiscard calls f(ev).
func (f DiscardReporterFunc) ReportDiscard(ev DiscardEvent) {
	f(ev)
}

// ZapReporter logs discards through the logging package.
type ZapReporter struct {
	Interface string
}

// ReportDiscard logs ev at error level.
func (r ZapReporter) ReportDiscard(ev DiscardEvent) {
	logging.LogDiscard(r.Interface, ev.Length, ev.Found, ev.LeadingHex())
}

type multiReporter []DiscardReporter

func (m multiReporter) ReportDiscard(ev DiscardEvent) {
	for _, r := range m {
		r.ReportDiscard(ev)
	}
}

// Reporters fans events out to every non-nil reporter.
func Reporters(rs ...DiscardReporter) DiscardReporter {
	out := make(multiReporter, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type nopReporter struct{}

func (nopReporter) ReportDiscard(DiscardEvent) {}
