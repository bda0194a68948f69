package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/groundlink/internal/iface"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/server"
	"github.com/muurk/groundlink/internal/stream"
)

// DefaultReconnectDelay is the reconnect delay written into new configs.
const DefaultReconnectDelay = iface.DefaultReconnectDelay

// DefaultNATSPrefix is the subject prefix when nats.prefix is empty.
const DefaultNATSPrefix = "groundlink"

func (c *Config) applyDefaults() {
	for _, itf := range c.Interfaces {
		if itf.Target == "" {
			itf.Target = itf.Name
		}
		if itf.AutoReconnect == nil {
			enabled := true
			itf.AutoReconnect = &enabled
		}
		if itf.ReconnectDelay <= 0 {
			itf.ReconnectDelay = Duration(DefaultReconnectDelay)
		}
	}
	for _, l := range c.Listeners {
		if l.Target == "" {
			l.Target = l.Name
		}
		if l.Kind == "" {
			l.Kind = string(stream.KindTCP)
		}
	}
	if c.NATS != nil && c.NATS.Prefix == "" {
		c.NATS.Prefix = DefaultNATSPrefix
	}
	if c.Discovery == nil {
		c.Discovery = NewConfig().Discovery
	}
}

// Validate checks names, transports, protocol chains and packet ids. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)

	checkName := func(kind, name string) {
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("%s has no name", kind))
		case seen[name]:
			errs = append(errs, fmt.Errorf("duplicate name %q", name))
		default:
			seen[name] = true
		}
	}

	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, err)
		}
	}

	for _, itf := range c.Interfaces {
		checkName("interface", itf.Name)
		if _, err := itf.IfaceConfig(); err != nil {
			errs = append(errs, err)
		}
		switch stream.Kind(itf.Stream.Kind) {
		case stream.KindTCP, stream.KindSerial, stream.KindWebSocket:
		default:
			errs = append(errs, fmt.Errorf("interface %s: unknown stream kind %q", itf.Name, itf.Stream.Kind))
		}
		if itf.Stream.Address == "" {
			errs = append(errs, fmt.Errorf("interface %s: stream address is required", itf.Name))
		}
	}

	for _, l := range c.Listeners {
		checkName("listener", l.Name)
		if _, err := l.IfaceConfig(); err != nil {
			errs = append(errs, err)
		}
		if l.Port < 0 || l.Port > 65535 {
			errs = append(errs, fmt.Errorf("listener %s: invalid port %d", l.Name, l.Port))
		}
		switch stream.Kind(l.Kind) {
		case stream.KindTCP, stream.KindWebSocket:
		default:
			errs = append(errs, fmt.Errorf("listener %s: unknown kind %q", l.Name, l.Kind))
		}
		if (l.CertPath == "") != (l.KeyPath == "") {
			errs = append(errs, fmt.Errorf("listener %s: cert_path and key_path must be set together", l.Name))
		}
	}

	if c.NATS != nil && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats: url is required"))
	}
	if c.Redis != nil && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis: addr is required"))
	}
	if c.Capture != nil && c.Capture.Dir == "" {
		errs = append(errs, errors.New("capture: dir is required"))
	}

	return errors.Join(errs...)
}

// IfaceConfig converts the interface definition for iface.New. The chain is
// built once here so bad protocol arguments fail at load time.
func (i *Interface) IfaceConfig() (iface.Config, error) {
	specs, defs, err := convertChain(i.Name, i.Protocols, i.Packets)
	if err != nil {
		return iface.Config{}, err
	}
	autoReconnect := true
	if i.AutoReconnect != nil {
		autoReconnect = *i.AutoReconnect
	}
	return iface.Config{
		Name:           i.Name,
		Target:         i.Target,
		Protocols:      specs,
		Packets:        defs,
		AutoReconnect:  autoReconnect,
		ReconnectDelay: i.ReconnectDelay.Std(),
	}, nil
}

// StreamConfig converts the stream definition for stream.New.
func (i *Interface) StreamConfig() stream.Config {
	s := i.Stream
	return stream.Config{
		Kind:           stream.Kind(strings.ToLower(s.Kind)),
		Address:        s.Address,
		BaudRate:       s.BaudRate,
		DataBits:       s.DataBits,
		Parity:         s.Parity,
		StopBits:       s.StopBits,
		ReadBufferSize: s.ReadBufferSize,
		ReadTimeout:    s.ReadTimeout.Std(),
		WriteTimeout:   s.WriteTimeout.Std(),
		DialTimeout:    s.DialTimeout.Std(),
	}
}

// IfaceConfig converts the listener's per-connection interface template.
func (l *Listener) IfaceConfig() (iface.Config, error) {
	specs, defs, err := convertChain(l.Name, l.Protocols, l.Packets)
	if err != nil {
		return iface.Config{}, err
	}
	return iface.Config{
		Name:      l.Name,
		Target:    l.Target,
		Protocols: specs,
		Packets:   defs,
	}, nil
}

// ServerConfig converts the listener for server.New.
func (l *Listener) ServerConfig() (*server.Config, error) {
	itf, err := l.IfaceConfig()
	if err != nil {
		return nil, err
	}
	return &server.Config{
		Host:      l.Host,
		Port:      l.Port,
		Kind:      stream.Kind(strings.ToLower(l.Kind)),
		Path:      l.Path,
		CertPath:  l.CertPath,
		KeyPath:   l.KeyPath,
		Advertise: l.Advertise,
		Interface: itf,
		Stream: stream.Config{
			ReadTimeout:  l.ReadTimeout.Std(),
			WriteTimeout: l.WriteTimeout.Std(),
		},
	}, nil
}

func convertChain(owner string, protocols []Protocol, packets []Packet) ([]protocol.Spec, []iface.PacketDef, error) {
	specs := make([]protocol.Spec, 0, len(protocols))
	for _, p := range protocols {
		specs = append(specs, protocol.Spec{Name: p.Name, Args: p.Args})
	}
	if _, err := protocol.BuildChain(specs, protocol.Options{}); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", owner, err)
	}

	defs := make([]iface.PacketDef, 0, len(packets))
	for _, p := range packets {
		id, err := protocol.ParseSyncPattern(p.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: packet %s: %w", owner, p.Name, err)
		}
		if len(id) == 0 {
			return nil, nil, fmt.Errorf("%s: packet %s: id is required", owner, p.Name)
		}
		if p.Name == "" {
			return nil, nil, fmt.Errorf("%s: packet with id %s has no name", owner, p.ID)
		}
		if p.Offset < 0 {
			return nil, nil, fmt.Errorf("%s: packet %s: offset %d is negative", owner, p.Name, p.Offset)
		}
		defs = append(defs, iface.PacketDef{Name: p.Name, Offset: p.Offset, ID: id})
	}
	return specs, defs, nil
}
