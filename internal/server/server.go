package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/groundlink/internal/discovery"
	"github.com/muurk/groundlink/internal/iface"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/stream"
	"github.com/muurk/groundlink/internal/syncutil"
	"github.com/muurk/groundlink/internal/version"
	"go.uber.org/zap"
)

// shutdownGrace bounds how long Shutdown waits for connection goroutines.
const shutdownGrace = 10 * time.Second

// Config holds the listener configuration
type Config struct {
	Host      string
	Port      int         // Zero picks a free port
	Kind      stream.Kind // stream.KindTCP (default) or stream.KindWebSocket
	Path      string      // WebSocket path, default "/"
	CertPath  string      // TLS certificate; TLS is enabled when set
	KeyPath   string      // TLS private key
	Advertise bool        // Register the listener over mDNS

	// Interface is the template for every accepted connection. Each
	// connection gets its own Interface and chain built from it.
	Interface iface.Config

	// Stream carries read/write timeouts for accepted connections.
	Stream stream.Config
}

// Server accepts device connections
type Server struct {
	config    *Config
	handler   iface.Handler
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader

	listener   net.Listener
	httpServer *http.Server
	ad         *discovery.Advertisement

	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	mu      syncutil.Mutex
	closing bool // Set by Shutdown; no connection is spawned after it
	active  map[string]*iface.Interface
}

// New validates config and creates a Server. handler receives every packet
// read from every connection and may be nil.
func New(config *Config, handler iface.Handler) (*Server, error) {
	if config.Interface.Name == "" {
		return nil, iface.ErrNoName
	}
	switch config.Kind {
	case "":
		config.Kind = stream.KindTCP
	case stream.KindTCP, stream.KindWebSocket:
	default:
		return nil, fmt.Errorf("%w: listener cannot serve %q", stream.ErrUnknownKind, config.Kind)
	}
	if config.Path == "" {
		config.Path = "/"
	}

	// Fail early on a bad chain so errors surface before the first device
	// connects.
	if _, err := protocol.BuildChain(config.Interface.Protocols, protocol.Options{}); err != nil {
		return nil, fmt.Errorf("invalid protocol chain: %w", err)
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	return &Server{
		config:    config,
		handler:   handler,
		tlsConfig: tlsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize: config.Stream.ReadBufferSize,
			CheckOrigin:    func(*http.Request) bool { return true },
		},
		active: make(map[string]*iface.Interface),
	}, nil
}

// Listen binds the listening socket and starts advertising if configured.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	var listener net.Listener
	var err error
	if s.tlsConfig != nil {
		listener, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	logging.Info("Listener started",
		zap.String("interface", s.config.Interface.Name),
		zap.String("addr", listener.Addr().String()),
		zap.String("kind", string(s.config.Kind)),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)

	if s.config.Advertise {
		ad, err := discovery.Advertise(discovery.AdvertiseInfo{
			Port:      s.Port(),
			Interface: s.config.Interface.Name,
			Target:    s.config.Interface.Target,
			Kind:      string(s.config.Kind),
			Version:   version.Version,
		})
		if err != nil {
			logging.Warn("Failed to advertise listener", zap.Error(err))
		} else {
			s.ad = ad
		}
	}
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on a bound listener until ctx is cancelled,
// then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server: Serve called before Listen")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	errChan := make(chan error, 1)
	go func() {
		if s.config.Kind == stream.KindWebSocket {
			errChan <- s.serveWebSocket()
		} else {
			errChan <- s.acceptConnections()
		}
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping listener...")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// acceptConnections accepts and handles incoming TCP connections
func (s *Server) acceptConnections() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			continue
		}
		s.spawn(stream.NewConn(conn, s.config.Stream))
	}
}

func (s *Server) serveWebSocket() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error("Invalid WebSocket upgrade request",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			return
		}
		s.spawn(stream.NewWebSocketConn(conn, s.config.Stream))
	})

	s.mu.Lock()
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()

	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Server) spawn(st stream.Stream) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = st.Disconnect()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.handleConnection(st)
	}()
}

// handleConnection runs a fresh interface on one accepted stream until it
// closes.
func (s *Server) handleConnection(st stream.Stream) {
	remoteAddr := st.Addr()

	cfg := s.config.Interface
	cfg.Name = fmt.Sprintf("%s[%s]", s.config.Interface.Name, remoteAddr)
	if cfg.Target == "" {
		cfg.Target = s.config.Interface.Name
	}
	cfg.AutoReconnect = false

	itf, err := iface.New(cfg, st)
	if err != nil {
		logging.Error("Failed to create interface for connection",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		_ = st.Disconnect()
		return
	}

	s.mu.Lock()
	s.active[remoteAddr] = itf
	s.mu.Unlock()

	defer func() {
		_ = itf.Disconnect()
		s.mu.Lock()
		delete(s.active, remoteAddr)
		s.mu.Unlock()
		logging.LogConnection(s.config.Interface.Name, remoteAddr, "connection_closed")
	}()

	logging.LogConnection(s.config.Interface.Name, remoteAddr, "connection_accepted")

	if err := itf.Run(s.ctx, s.handler); err != nil && !isClosed(err) {
		logging.Error("Connection error",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}

// Broadcast writes pkt to every active connection and returns how many
// writes succeeded.
func (s *Server) Broadcast(ctx context.Context, pkt *protocol.Packet) (int, error) {
	s.mu.Lock()
	targets := make([]*iface.Interface, 0, len(s.active))
	for _, itf := range s.active {
		targets = append(targets, itf)
	}
	s.mu.Unlock()

	var errs []error
	sent := 0
	for _, itf := range targets {
		clone := protocol.NewPacket(pkt.Target, pkt.Name, pkt.Bytes())
		if err := itf.WritePacket(ctx, clone); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down listener...")

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.ad.Shutdown()

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer != nil {
		_ = httpServer.Close()
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	s.mu.Lock()
	for addr, itf := range s.active {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = itf.Disconnect()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	case <-time.After(shutdownGrace):
		logging.Warn("Shutdown timeout after 10 seconds, forcing close")
	}

	logging.Sync()
	return nil
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// ActiveInterfaces returns the interfaces of all open connections.
func (s *Server) ActiveInterfaces() []*iface.Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*iface.Interface, 0, len(s.active))
	for _, itf := range s.active {
		out = append(out, itf)
	}
	return out
}

func isClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, stream.ErrNotConnected) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}
