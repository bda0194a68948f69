package protocol

import "github.com/muurk/groundlink/internal/syncutil"

// recordingReporter keeps every event in memory.
type recordingReporter struct {
	mu     syncutil.Mutex
	events []DiscardEvent
}

func (r *recordingReporter) ReportDiscard(ev DiscardEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *recordingReporter) Events() []DiscardEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DiscardEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingReporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
