package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/groundlink/internal/syncutil"
)

// closeWait bounds the close handshake on Disconnect.
const closeWait = time.Second

// WebSocketStream is a WebSocket client that carries one datagram per
// message. Every Read returns exactly one message.
type WebSocketStream struct {
	cfg      Config
	dialer   *websocket.Dialer
	accepted bool

	mu   syncutil.Mutex
	conn *websocket.Conn
}

// NewWebSocket creates an unconnected WebSocket stream.
func NewWebSocket(cfg Config) *WebSocketStream {
	cfg.Kind = KindWebSocket
	return &WebSocketStream{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.dialTimeout(),
			ReadBufferSize:   cfg.readBufferSize(),
		},
	}
}

// NewWebSocketConn wraps a connection produced by a server-side upgrade.
// Like ConnStream it cannot be redialed once closed.
func NewWebSocketConn(conn *websocket.Conn, cfg Config) *WebSocketStream {
	cfg.Kind = KindWebSocket
	if cfg.Address == "" {
		cfg.Address = conn.RemoteAddr().String()
	}
	return &WebSocketStream{cfg: cfg, conn: conn, accepted: true}
}

// Connect performs the WebSocket handshake.
func (s *WebSocketStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyConnected
	}
	if s.accepted {
		return fmt.Errorf("accepted connection %s already closed: %w", s.cfg.Address, ErrNotConnected)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.Address, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.Address, err)
	}
	s.conn = conn
	return nil
}

// Read returns the payload of the next text or binary message.
func (s *WebSocketStream) Read(ctx context.Context) ([]byte, error) {
	conn := s.current()
	if conn == nil {
		return nil, ErrNotConnected
	}

	if err := conn.SetReadDeadline(deadline(s.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if msgType == websocket.BinaryMessage || msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

// Write sends data as one binary message.
func (s *WebSocketStream) Write(ctx context.Context, data []byte) error {
	conn := s.current()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(deadline(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Disconnect sends a close frame and closes the connection.
func (s *WebSocketStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Connected reports whether the connection is open.
func (s *WebSocketStream) Connected() bool {
	return s.current() != nil
}

// Kind returns KindWebSocket.
func (s *WebSocketStream) Kind() Kind { return KindWebSocket }

// Addr returns the URL.
func (s *WebSocketStream) Addr() string { return s.cfg.Address }

func (s *WebSocketStream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
