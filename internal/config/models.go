package config

import (
	"fmt"
	"time"
)

// CurrentVersion is the only config file version this build reads.
const CurrentVersion = 1

// Config represents the entire groundlink configuration file.
type Config struct {
	Version    int          `yaml:"version" toml:"version"`
	LogLevel   string       `yaml:"log_level,omitempty" toml:"log_level,omitempty"`
	Interfaces []*Interface `yaml:"interfaces,omitempty" toml:"interfaces,omitempty"`
	Listeners  []*Listener  `yaml:"listeners,omitempty" toml:"listeners,omitempty"`
	NATS       *NATS        `yaml:"nats,omitempty" toml:"nats,omitempty"`
	Redis      *Redis       `yaml:"redis,omitempty" toml:"redis,omitempty"`
	Capture    *Capture     `yaml:"capture,omitempty" toml:"capture,omitempty"`
	Discovery  *Discovery   `yaml:"discovery,omitempty" toml:"discovery,omitempty"`
}

// Interface is a client-side link: groundlink opens the stream.
type Interface struct {
	Name           string     `yaml:"name" toml:"name"`
	Target         string     `yaml:"target,omitempty" toml:"target,omitempty"` // Defaults to Name
	Stream         Stream     `yaml:"stream" toml:"stream"`
	Protocols      []Protocol `yaml:"protocols,omitempty" toml:"protocols,omitempty"`
	Packets        []Packet   `yaml:"packets,omitempty" toml:"packets,omitempty"`
	AutoReconnect  *bool      `yaml:"auto_reconnect,omitempty" toml:"auto_reconnect,omitempty"` // Default true
	ReconnectDelay Duration   `yaml:"reconnect_delay,omitempty" toml:"reconnect_delay,omitempty"`
}

// Stream describes the transport of an interface.
type Stream struct {
	Kind           string   `yaml:"kind" toml:"kind"`       // tcp, serial, websocket
	Address        string   `yaml:"address" toml:"address"` // host:port, device path, or ws:// URL
	BaudRate       int      `yaml:"baud_rate,omitempty" toml:"baud_rate,omitempty"`
	DataBits       int      `yaml:"data_bits,omitempty" toml:"data_bits,omitempty"`
	Parity         string   `yaml:"parity,omitempty" toml:"parity,omitempty"`
	StopBits       string   `yaml:"stop_bits,omitempty" toml:"stop_bits,omitempty"`
	ReadBufferSize int      `yaml:"read_buffer_size,omitempty" toml:"read_buffer_size,omitempty"`
	ReadTimeout    Duration `yaml:"read_timeout,omitempty" toml:"read_timeout,omitempty"`
	WriteTimeout   Duration `yaml:"write_timeout,omitempty" toml:"write_timeout,omitempty"`
	DialTimeout    Duration `yaml:"dial_timeout,omitempty" toml:"dial_timeout,omitempty"`
}

// Protocol is one layer of a chain, e.g. {name: stream, args: ["0", "0x1ACFFC1D", "true"]}.
type Protocol struct {
	Name string   `yaml:"name" toml:"name"`
	Args []string `yaml:"args,omitempty" toml:"args,omitempty"`
}

// Packet names payloads whose bytes at Offset equal ID (hex).
type Packet struct {
	Name   string `yaml:"name" toml:"name"`
	Offset int    `yaml:"offset" toml:"offset"`
	ID     string `yaml:"id" toml:"id"`
}

// Listener is a server-side link: devices connect to groundlink.
type Listener struct {
	Name         string     `yaml:"name" toml:"name"`
	Target       string     `yaml:"target,omitempty" toml:"target,omitempty"`
	Host         string     `yaml:"host,omitempty" toml:"host,omitempty"`
	Port         int        `yaml:"port" toml:"port"`
	Kind         string     `yaml:"kind,omitempty" toml:"kind,omitempty"` // tcp (default) or websocket
	Path         string     `yaml:"path,omitempty" toml:"path,omitempty"`
	CertPath     string     `yaml:"cert_path,omitempty" toml:"cert_path,omitempty"`
	KeyPath      string     `yaml:"key_path,omitempty" toml:"key_path,omitempty"`
	Advertise    bool       `yaml:"advertise,omitempty" toml:"advertise,omitempty"`
	Protocols    []Protocol `yaml:"protocols,omitempty" toml:"protocols,omitempty"`
	Packets      []Packet   `yaml:"packets,omitempty" toml:"packets,omitempty"`
	ReadTimeout  Duration   `yaml:"read_timeout,omitempty" toml:"read_timeout,omitempty"`
	WriteTimeout Duration   `yaml:"write_timeout,omitempty" toml:"write_timeout,omitempty"`
}

// NATS configures the telemetry publisher and command subscription.
type NATS struct {
	URL      string `yaml:"url" toml:"url"`
	Prefix   string `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	Commands bool   `yaml:"commands,omitempty" toml:"commands,omitempty"` // Subscribe to <prefix>.cmd.<interface>
}

// Redis configures the current-value table.
type Redis struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password,omitempty" toml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" toml:"db,omitempty"`
}

// Capture configures the JSON-lines packet capture.
type Capture struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// Discovery configures mDNS browsing.
type Discovery struct {
	Timeout Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// Duration is a time.Duration written as "5s" in YAML and TOML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Discovery: &Discovery{
			Timeout: Duration(10 * time.Second),
		},
	}
}

// GetInterface returns the interface with the given name, or nil.
func (c *Config) GetInterface(name string) *Interface {
	for _, itf := range c.Interfaces {
		if itf.Name == name {
			return itf
		}
	}
	return nil
}

// GetListener returns the listener with the given name, or nil.
func (c *Config) GetListener(name string) *Listener {
	for _, l := range c.Listeners {
		if l.Name == name {
			return l
		}
	}
	return nil
}
