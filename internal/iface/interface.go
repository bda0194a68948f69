package iface

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/stream"
	"github.com/muurk/groundlink/internal/syncutil"
	"go.uber.org/zap"
)

// DefaultReconnectDelay is used when Config.ReconnectDelay is zero.
const DefaultReconnectDelay = 5 * time.Second

// Handler receives packets. A returned error is logged and the loop
// continues.
type Handler func(ctx context.Context, pkt *protocol.Packet) error

// Config describes one interface.
type Config struct {
	Name           string
	Target         string // Defaults to Name
	Protocols      []protocol.Spec
	Packets        []PacketDef
	AutoReconnect  bool
	ReconnectDelay time.Duration
	Reporter       protocol.DiscardReporter // Extra discard sink, may be nil
	OnWrite        Handler                  // Called after each successful write, may be nil
}

// Stats is a snapshot of interface counters.
type Stats struct {
	Connects       uint64
	BytesRead      uint64
	BytesWritten   uint64
	PacketsRead    uint64
	PacketsWritten uint64
	Discards       uint64
	DiscardedBytes uint64
}

// Interface moves packets between a stream and a protocol chain.
type Interface struct {
	cfg    Config
	stream stream.Stream
	chain  *protocol.Chain

	readMu  syncutil.Mutex
	writeMu syncutil.Mutex
	// chainMu serializes every chain call. readMu and writeMu are held
	// across stream I/O, so the read and write paths never share them.
	chainMu syncutil.Mutex

	// drain is set after every chain step so the next pass asks the chain
	// for buffered packets before reading the stream.
	drain bool

	connects       atomic.Uint64
	bytesRead      atomic.Uint64
	bytesWritten   atomic.Uint64
	packetsRead    atomic.Uint64
	packetsWritten atomic.Uint64
	discards       atomic.Uint64
	discardedBytes atomic.Uint64
}

// New validates cfg and builds the interface's chain.
func New(cfg Config, s stream.Stream) (*Interface, error) {
	if cfg.Name == "" {
		return nil, ErrNoName
	}
	if s == nil {
		return nil, ErrNoStream
	}
	if cfg.Target == "" {
		cfg.Target = cfg.Name
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	for _, def := range cfg.Packets {
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("interface %s: %w", cfg.Name, err)
		}
	}

	i := &Interface{cfg: cfg, stream: s}
	reporter := protocol.Reporters(
		protocol.ZapReporter{Interface: cfg.Name},
		protocol.DiscardReporterFunc(i.countDiscard),
		cfg.Reporter,
	)

	chain, err := protocol.BuildChain(cfg.Protocols, protocol.Options{Reporter: reporter})
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", cfg.Name, err)
	}
	i.chain = chain
	return i, nil
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.cfg.Name }

// Target returns the target packets are attributed to.
func (i *Interface) Target() string { return i.cfg.Target }

// Stream returns the underlying stream.
func (i *Interface) Stream() stream.Stream { return i.stream }

// Connect opens the stream and resets the chain.
func (i *Interface) Connect(ctx context.Context) error {
	if err := i.stream.Connect(ctx); err != nil && !errors.Is(err, stream.ErrAlreadyConnected) {
		return err
	}

	i.readMu.Lock()
	i.chainMu.Lock()
	i.chain.Reset()
	i.chainMu.Unlock()
	i.drain = false
	i.readMu.Unlock()

	i.connects.Add(1)
	logging.LogConnection(i.cfg.Name, i.stream.Addr(), "connected")
	return nil
}

// Disconnect closes the stream.
func (i *Interface) Disconnect() error {
	err := i.stream.Disconnect()
	logging.LogConnection(i.cfg.Name, i.stream.Addr(), "disconnected")
	return err
}

// Connected reports whether the stream is open.
func (i *Interface) Connected() bool {
	return i.stream.Connected()
}

// ReadPacket blocks until the chain yields a non-empty payload. It returns
// ErrDisconnectRequested if a protocol hangs up, or the stream's error.
func (i *Interface) ReadPacket(ctx context.Context) (*protocol.Packet, error) {
	i.readMu.Lock()
	defer i.readMu.Unlock()

	for {
		var res protocol.Result
		fromStream := true

		if i.drain {
			i.chainMu.Lock()
			next, ok := i.chain.Next()
			i.chainMu.Unlock()
			if ok {
				res = next
				fromStream = false
			} else {
				i.drain = false
			}
		}

		if fromStream {
			chunk, err := i.stream.Read(ctx)
			if err != nil {
				return nil, err
			}
			if len(chunk) == 0 {
				continue
			}
			i.bytesRead.Add(uint64(len(chunk)))
			logging.LogRawBytes("Raw bytes received", chunk)
			i.chainMu.Lock()
			res = i.chain.Read(chunk)
			i.chainMu.Unlock()
		}

		switch res.Signal {
		case protocol.NeedMoreData:
			// An outer layer may still hold whole frames for the layer
			// that asked for more.
			i.drain = true
			continue
		case protocol.Disconnect:
			i.drain = false
			return nil, ErrDisconnectRequested
		case protocol.ReadyBytes:
			i.drain = true
			if len(res.Data) == 0 {
				continue
			}
			pkt := protocol.NewPacket(i.cfg.Target, Identify(i.cfg.Packets, res.Data), res.Data)
			pkt.ReceivedAt = time.Now()
			i.packetsRead.Add(1)
			logging.LogPacket(i.cfg.Name, "read", pkt.Target, pkt.Name, res.Data)
			return pkt, nil
		default:
			return nil, fmt.Errorf("iface: unexpected signal %s", res.Signal)
		}
	}
}

// WritePacket runs pkt through the chain's write path and sends it. The
// packet buffer may be modified in place by fill-field protocols.
func (i *Interface) WritePacket(ctx context.Context, pkt *protocol.Packet) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	if !i.stream.Connected() {
		return stream.ErrNotConnected
	}
	if pkt.Target == "" {
		pkt.Target = i.cfg.Target
	}

	i.chainMu.Lock()
	data := i.chain.Write(pkt)
	i.chainMu.Unlock()
	if err := i.stream.Write(ctx, data); err != nil {
		return fmt.Errorf("interface %s: %w", i.cfg.Name, err)
	}

	i.bytesWritten.Add(uint64(len(data)))
	i.packetsWritten.Add(1)
	logging.LogPacket(i.cfg.Name, "write", pkt.Target, pkt.Name, data)

	if i.cfg.OnWrite != nil {
		if err := i.cfg.OnWrite(ctx, pkt); err != nil {
			logging.Warn("Write handler failed",
				zap.String("interface", i.cfg.Name),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Run connects and reads packets into handler until ctx is cancelled. On a
// stream error or protocol hangup it disconnects and, with AutoReconnect,
// tries again after ReconnectDelay. Without AutoReconnect the first such
// error is returned. Cancellation returns nil.
func (i *Interface) Run(ctx context.Context, handler Handler) error {
	for {
		err := i.Connect(ctx)
		if err == nil {
			err = i.readLoop(ctx, handler)
			_ = i.Disconnect()
		}

		if ctx.Err() != nil {
			return nil
		}
		if !i.cfg.AutoReconnect {
			return err
		}

		logging.Warn("Interface connection lost, reconnecting",
			zap.String("interface", i.cfg.Name),
			zap.Duration("delay", i.cfg.ReconnectDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(i.cfg.ReconnectDelay):
		}
	}
}

func (i *Interface) readLoop(ctx context.Context, handler Handler) error {
	for {
		pkt, err := i.ReadPacket(ctx)
		if err != nil {
			return err
		}
		if handler == nil {
			continue
		}
		if err := handler(ctx, pkt); err != nil {
			logging.Warn("Packet handler failed",
				zap.String("interface", i.cfg.Name),
				zap.String("packet", pkt.Name),
				zap.Error(err),
			)
		}
	}
}

// Stats returns a snapshot of the counters.
func (i *Interface) Stats() Stats {
	return Stats{
		Connects:       i.connects.Load(),
		BytesRead:      i.bytesRead.Load(),
		BytesWritten:   i.bytesWritten.Load(),
		PacketsRead:    i.packetsRead.Load(),
		PacketsWritten: i.packetsWritten.Load(),
		Discards:       i.discards.Load(),
		DiscardedBytes: i.discardedBytes.Load(),
	}
}

func (i *Interface) countDiscard(ev protocol.DiscardEvent) {
	i.discards.Add(1)
	i.discardedBytes.Add(uint64(ev.Length))
}
