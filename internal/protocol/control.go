package protocol

import "fmt"

// Signal tells the caller of a read step what to do next.
type Signal int

const (
	// ReadyBytes means Result.Data holds a complete payload.
	ReadyBytes Signal = iota
	// NeedMoreData means the caller must read the transport again and feed
	// the new bytes to the same step.
	NeedMoreData
	// Disconnect means the connection is unusable and must be torn down.
	Disconnect
)

// String returns a human-readable signal name
func (s Signal) String() string {
	switch s {
	case ReadyBytes:
		return "ready"
	case NeedMoreData:
		return "need_more_data"
	case Disconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Result is the tagged outcome of a read step. Data is only meaningful when
// Signal is ReadyBytes.
type Result struct {
	Signal Signal
	Data   []byte
}

// Ready returns a ReadyBytes result carrying data.
func Ready(data []byte) Result {
	return Result{Signal: ReadyBytes, Data: data}
}

// NeedMore returns a NeedMoreData result.
func NeedMore() Result {
	return Result{Signal: NeedMoreData}
}

// Hangup returns a Disconnect result.
func Hangup() Result {
	return Result{Signal: Disconnect}
}

// IsReady reports whether the result carries a payload.
func (r Result) IsReady() bool {
	return r.Signal == ReadyBytes
}

func (r Result) String() string {
	if r.Signal == ReadyBytes {
		return fmt.Sprintf("Result{ready, len=%d}", len(r.Data))
	}
	return fmt.Sprintf("Result{%s}", r.Signal)
}
