package iface

import "errors"

var (
	// ErrDisconnectRequested is returned when a protocol asks for the
	// connection to be dropped.
	ErrDisconnectRequested = errors.New("iface: protocol requested disconnect")

	// ErrNoName is returned when an interface is configured without a name.
	ErrNoName = errors.New("iface: name is required")

	// ErrNoStream is returned when an interface has no stream.
	ErrNoStream = errors.New("iface: stream is required")
)
