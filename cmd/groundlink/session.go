package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/config"
	"github.com/muurk/groundlink/internal/iface"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/server"
	"github.com/muurk/groundlink/internal/sink"
	"github.com/muurk/groundlink/internal/stream"
)

// sessionOptions selects and decorates the links a command runs.
type sessionOptions struct {
	// Names restricts the run to these interfaces and listeners; empty
	// means all of them.
	Names []string

	// Sinks are added in front of the configured ones.
	Sinks []sink.Sink

	// Reporter, when set, returns an extra discard reporter per link.
	Reporter func(name string) protocol.DiscardReporter

	// NoRemoteSinks skips NATS, Redis and capture from the config.
	NoRemoteSinks bool
}

// session is the set of links and sinks one command runs.
type session struct {
	cfg        *config.Config
	sinks      *sink.Multi
	nc         *nats.Conn
	interfaces []*iface.Interface
	servers    []*server.Server
	names      map[*server.Server]*config.Listener
}

func buildSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (sess *session, err error) {
	sess = &session{cfg: cfg, names: make(map[*server.Server]*config.Listener)}

	sinks := append([]sink.Sink{}, opts.Sinks...)
	sinks = append(sinks, sink.Log())
	defer func() {
		if err != nil {
			_ = sink.NewMulti(sinks...).Close()
		}
	}()

	if !opts.NoRemoteSinks {
		if cfg.Capture != nil {
			capture, err := sink.NewCapture(cfg.Capture.Dir)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, capture)
		}
		if cfg.Redis != nil {
			client, err := sink.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink.NewCVT(client))
		}
		if cfg.NATS != nil {
			nc, err := sink.ConnectNATS(cfg.NATS.URL, "groundlink")
			if err != nil {
				return nil, err
			}
			sess.nc = nc
			sinks = append(sinks, sink.NewNATSSink(nc, cfg.NATS.Prefix))
		}
	}
	sess.sinks = sink.NewMulti(sinks...)

	wanted, err := selectNames(cfg, opts.Names)
	if err != nil {
		return nil, err
	}

	for _, def := range cfg.Interfaces {
		if !wanted(def.Name) {
			continue
		}
		itf, err := sess.newInterface(def, opts.Reporter)
		if err != nil {
			return nil, err
		}
		sess.interfaces = append(sess.interfaces, itf)
	}

	for _, def := range cfg.Listeners {
		if !wanted(def.Name) {
			continue
		}
		sc, err := def.ServerConfig()
		if err != nil {
			return nil, err
		}
		sc.Interface.OnWrite = sess.sinks.Handler(def.Name, sink.DirectionWrite)
		if opts.Reporter != nil {
			sc.Interface.Reporter = opts.Reporter(def.Name)
		}
		srv, err := server.New(sc, sess.sinks.Handler(def.Name, sink.DirectionRead))
		if err != nil {
			return nil, fmt.Errorf("listener %s: %w", def.Name, err)
		}
		sess.servers = append(sess.servers, srv)
		sess.names[srv] = def
	}

	if len(sess.interfaces) == 0 && len(sess.servers) == 0 {
		return nil, errors.New("no interfaces or listeners configured")
	}
	return sess, nil
}

func (sess *session) newInterface(def *config.Interface, reporter func(string) protocol.DiscardReporter) (*iface.Interface, error) {
	ic, err := def.IfaceConfig()
	if err != nil {
		return nil, err
	}
	ic.OnWrite = sess.sinks.Handler(def.Name, sink.DirectionWrite)
	if reporter != nil {
		ic.Reporter = reporter(def.Name)
	}

	st, err := stream.New(def.StreamConfig())
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", def.Name, err)
	}
	return iface.New(ic, st)
}

// selectNames returns a filter for names, failing on names that match no
// interface or listener.
func selectNames(cfg *config.Config, names []string) (func(string) bool, error) {
	if len(names) == 0 {
		return func(string) bool { return true }, nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		if cfg.GetInterface(name) == nil && cfg.GetListener(name) == nil {
			return nil, fmt.Errorf("no interface or listener named %q", name)
		}
		set[name] = true
	}
	return func(name string) bool { return set[name] }, nil
}

// Run starts every link and blocks until ctx is cancelled or all links
// have stopped.
func (sess *session) Run(ctx context.Context) error {
	defer func() {
		if err := sess.sinks.Close(); err != nil {
			logging.Warn("Failed to close sinks", zap.Error(err))
		}
	}()

	if err := sess.subscribeCommands(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(sess.interfaces)+len(sess.servers))

	for _, itf := range sess.interfaces {
		wg.Add(1)
		go func(itf *iface.Interface) {
			defer wg.Done()
			if err := itf.Run(ctx, sess.sinks.Handler(itf.Name(), sink.DirectionRead)); err != nil {
				errs <- fmt.Errorf("interface %s: %w", itf.Name(), err)
			}
		}(itf)
	}
	for _, srv := range sess.servers {
		wg.Add(1)
		go func(srv *server.Server) {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				errs <- fmt.Errorf("listener %s: %w", sess.names[srv].Name, err)
			}
		}(srv)
	}

	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	return errors.Join(all...)
}

// subscribeCommands routes NATS commands to interfaces and, for listeners,
// to every connected device.
func (sess *session) subscribeCommands(ctx context.Context) error {
	if sess.nc == nil || sess.cfg.NATS == nil || !sess.cfg.NATS.Commands {
		return nil
	}
	prefix := sess.cfg.NATS.Prefix

	for _, itf := range sess.interfaces {
		if _, err := sink.SubscribeCommands(ctx, sess.nc, prefix, itf.Name(), itf.Target(), itf.WritePacket); err != nil {
			return err
		}
	}
	for _, srv := range sess.servers {
		def := sess.names[srv]
		broadcast := func(ctx context.Context, pkt *protocol.Packet) error {
			n, err := srv.Broadcast(ctx, pkt)
			if err == nil && n == 0 {
				return fmt.Errorf("listener %s has no connected devices", def.Name)
			}
			return err
		}
		if _, err := sink.SubscribeCommands(ctx, sess.nc, prefix, def.Name, def.Target, broadcast); err != nil {
			return err
		}
	}
	return nil
}
