package stream

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/muurk/groundlink/internal/syncutil"
)

// TCPStream is a TCP client stream.
type TCPStream struct {
	cfg  Config
	mu   syncutil.Mutex
	conn net.Conn
	buf  []byte
}

// NewTCP creates an unconnected TCP stream.
func NewTCP(cfg Config) *TCPStream {
	cfg.Kind = KindTCP
	return &TCPStream{
		cfg: cfg,
		buf: make([]byte, cfg.readBufferSize()),
	}
}

// Connect dials the configured address.
func (s *TCPStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyConnected
	}

	dialer := &net.Dialer{Timeout: s.cfg.dialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.Address, err)
	}
	s.conn = conn
	return nil
}

// Read returns the next chunk of bytes from the socket.
func (s *TCPStream) Read(ctx context.Context) ([]byte, error) {
	conn := s.current()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return readConn(ctx, conn, s.buf, s.cfg.ReadTimeout)
}

// Write sends data on the socket.
func (s *TCPStream) Write(ctx context.Context, data []byte) error {
	conn := s.current()
	if conn == nil {
		return ErrNotConnected
	}
	return writeConn(ctx, conn, data, s.cfg.WriteTimeout)
}

// Disconnect closes the socket.
func (s *TCPStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Connected reports whether a socket is open.
func (s *TCPStream) Connected() bool {
	return s.current() != nil
}

// Kind returns KindTCP.
func (s *TCPStream) Kind() Kind { return KindTCP }

// Addr returns the dial address.
func (s *TCPStream) Addr() string { return s.cfg.Address }

func (s *TCPStream) current() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// ConnStream wraps a connection accepted by a listener. It starts connected
// and cannot be reconnected once closed.
type ConnStream struct {
	mu     syncutil.Mutex
	conn   net.Conn
	addr   string
	closed bool
	buf    []byte
	cfg    Config
}

// NewConn wraps conn.
func NewConn(conn net.Conn, cfg Config) *ConnStream {
	cfg.Kind = KindConn
	return &ConnStream{
		conn: conn,
		addr: conn.RemoteAddr().String(),
		buf:  make([]byte, cfg.readBufferSize()),
		cfg:  cfg,
	}
}

// Connect succeeds while the wrapped connection is open.
func (s *ConnStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("accepted connection %s already closed: %w", s.addr, ErrNotConnected)
	}
	return nil
}

// Read returns the next chunk of bytes from the connection.
func (s *ConnStream) Read(ctx context.Context) ([]byte, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}
	return readConn(ctx, s.conn, s.buf, s.cfg.ReadTimeout)
}

// Write sends data on the connection.
func (s *ConnStream) Write(ctx context.Context, data []byte) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	return writeConn(ctx, s.conn, data, s.cfg.WriteTimeout)
}

// Disconnect closes the connection.
func (s *ConnStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Connected reports whether the connection is still open.
func (s *ConnStream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Kind returns KindConn.
func (s *ConnStream) Kind() Kind { return KindConn }

// Addr returns the remote address.
func (s *ConnStream) Addr() string { return s.addr }

// readConn reads once from conn, unblocking when ctx is done.
func readConn(ctx context.Context, conn net.Conn, buf []byte, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(deadline(timeout)); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, err := conn.Read(buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return []byte{}, nil
}

func writeConn(ctx context.Context, conn net.Conn, data []byte, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}
