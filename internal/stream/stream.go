package stream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies a stream implementation.
type Kind string

const (
	// KindTCP is a TCP client connection.
	KindTCP Kind = "tcp"
	// KindSerial is a serial/UART port.
	KindSerial Kind = "serial"
	// KindWebSocket is a binary WebSocket client; one message per read.
	KindWebSocket Kind = "websocket"
	// KindConn wraps an already-accepted connection.
	KindConn Kind = "conn"
)

// DefaultReadBufferSize is the largest chunk returned by one Read.
const DefaultReadBufferSize = 4096

var (
	ErrNotConnected     = errors.New("stream: not connected")
	ErrAlreadyConnected = errors.New("stream: already connected")
	ErrUnknownKind      = errors.New("stream: unknown kind")
	ErrNoAddress        = errors.New("stream: address is required")
)

// Stream moves raw bytes over a physical or network link. It knows nothing
// about packets. Read and Write may be called from different goroutines,
// but each must only have one caller at a time.
type Stream interface {
	// Connect opens the link.
	Connect(ctx context.Context) error
	// Read blocks until at least one byte arrives, ctx is done, or the
	// link fails.
	Read(ctx context.Context) ([]byte, error)
	// Write sends all of data.
	Write(ctx context.Context, data []byte) error
	// Disconnect closes the link. It is safe to call more than once.
	Disconnect() error
	// Connected reports whether the link is open.
	Connected() bool
	// Kind returns the implementation kind.
	Kind() Kind
	// Addr returns the configured address for logging.
	Addr() string
}

// Config describes a stream. Address is host:port for TCP, a device path
// for serial, and a ws:// or wss:// URL for WebSocket.
type Config struct {
	Kind           Kind
	Address        string
	BaudRate       int           // Serial only; default 115200
	DataBits       int           // Serial only; default 8
	Parity         string        // Serial only: none, odd, even, mark, space
	StopBits       string        // Serial only: 1, 1.5, 2
	ReadBufferSize int           // Default DefaultReadBufferSize
	ReadTimeout    time.Duration // Zero waits forever
	WriteTimeout   time.Duration // Zero waits forever
	DialTimeout    time.Duration // TCP and WebSocket; default 10s
}

// New builds an unconnected stream from cfg.
func New(cfg Config) (Stream, error) {
	if cfg.Address == "" {
		return nil, ErrNoAddress
	}
	switch cfg.Kind {
	case KindTCP:
		return NewTCP(cfg), nil
	case KindSerial:
		s, err := NewSerial(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindWebSocket:
		return NewWebSocket(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func (c Config) readBufferSize() int {
	if c.ReadBufferSize <= 0 {
		return DefaultReadBufferSize
	}
	return c.ReadBufferSize
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return 10 * time.Second
	}
	return c.DialTimeout
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
