package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/groundlink/internal/stream"
)

const yamlConfig = `
version: 1
log_level: debug
interfaces:
  - name: RADIO
    target: SAT
    stream:
      kind: serial
      address: /dev/ttyUSB0
      baud_rate: 57600
      read_timeout: 2s
    protocols:
      - name: stream
        args: ["2", "0x1ACFFC1D", "true"]
    packets:
      - {name: HEALTH, offset: 4, id: "0x01"}
    reconnect_delay: 250ms
  - name: BENCH
    stream: {kind: tcp, address: "127.0.0.1:7779"}
    auto_reconnect: false
listeners:
  - name: INBOUND
    port: 7780
    advertise: true
nats:
  url: nats://127.0.0.1:4222
`

const tomlConfig = `
version = 1

[[interfaces]]
name = "RADIO"
target = "SAT"
reconnect_delay = "250ms"

[interfaces.stream]
kind = "serial"
address = "/dev/ttyUSB0"
baud_rate = 57600
read_timeout = "2s"

[[interfaces.protocols]]
name = "stream"
args = ["2", "0x1ACFFC1D", "true"]

[[interfaces.packets]]
name = "HEALTH"
offset = 4
id = "0x01"

[[listeners]]
name = "INBOUND"
port = 7780
advertise = true

[nats]
url = "nats://127.0.0.1:4222"
`

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(configDir, "groundlink") {
		t.Errorf("GetConfigDir() = %v, should contain 'groundlink'", configDir)
	}

	switch runtime.GOOS {
	case "windows", "darwin":
	default:
		if configDir != filepath.Join("/tmp/xdg", "groundlink") {
			t.Errorf("GetConfigDir() = %v, want /tmp/xdg/groundlink", configDir)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestFindConfigPath(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("uses XDG_CONFIG_HOME")
	}
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if got, err := FindConfigPath("/etc/groundlink.toml"); err != nil || got != "/etc/groundlink.toml" {
		t.Errorf("FindConfigPath(explicit) = %v, %v", got, err)
	}

	if _, err := FindConfigPath(""); !errors.Is(err, ErrNoConfig) {
		t.Errorf("FindConfigPath() error = %v, want ErrNoConfig", err)
	}

	dir := filepath.Join(tmpDir, "groundlink")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	tomlPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(tomlPath, []byte(tomlConfig), 0600); err != nil {
		t.Fatal(err)
	}
	if got, _ := FindConfigPath(""); got != tomlPath {
		t.Errorf("FindConfigPath() = %v, want %v", got, tomlPath)
	}

	yamlPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(yamlPath, []byte(yamlConfig), 0600); err != nil {
		t.Fatal(err)
	}
	if got, _ := FindConfigPath(""); got != yamlPath {
		t.Errorf("FindConfigPath() = %v, want %v (yaml preferred)", got, yamlPath)
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"config.yaml", FormatYAML},
		{"config.yml", FormatYAML},
		{"config.toml", FormatTOML},
		{"CONFIG.TOML", FormatTOML},
		{"config", FormatYAML},
	}
	for _, tt := range tests {
		if got := FormatForPath(tt.path); got != tt.want {
			t.Errorf("FormatForPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"yaml", yamlConfig, FormatYAML},
		{"toml", tomlConfig, FormatTOML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			radio := cfg.GetInterface("RADIO")
			if radio == nil {
				t.Fatal("interface RADIO missing")
			}
			if radio.Target != "SAT" {
				t.Errorf("Target = %v, want SAT", radio.Target)
			}
			if radio.ReconnectDelay.Std() != 250*time.Millisecond {
				t.Errorf("ReconnectDelay = %v, want 250ms", radio.ReconnectDelay.Std())
			}
			if radio.AutoReconnect == nil || !*radio.AutoReconnect {
				t.Error("AutoReconnect should default to true")
			}

			sc := radio.StreamConfig()
			if sc.Kind != stream.KindSerial || sc.BaudRate != 57600 || sc.ReadTimeout != 2*time.Second {
				t.Errorf("StreamConfig() = %+v", sc)
			}

			ic, err := radio.IfaceConfig()
			if err != nil {
				t.Fatalf("IfaceConfig() error = %v", err)
			}
			if len(ic.Protocols) != 1 || ic.Protocols[0].Name != "stream" {
				t.Errorf("Protocols = %+v", ic.Protocols)
			}
			if len(ic.Packets) != 1 || ic.Packets[0].Offset != 4 || string(ic.Packets[0].ID) != "\x01" {
				t.Errorf("Packets = %+v", ic.Packets)
			}

			inbound := cfg.GetListener("INBOUND")
			if inbound == nil {
				t.Fatal("listener INBOUND missing")
			}
			if inbound.Target != "INBOUND" || inbound.Kind != "tcp" {
				t.Errorf("listener defaults = target %v kind %v", inbound.Target, inbound.Kind)
			}
			if cfg.NATS.Prefix != DefaultNATSPrefix {
				t.Errorf("NATS.Prefix = %v, want %v", cfg.NATS.Prefix, DefaultNATSPrefix)
			}
			if cfg.Discovery == nil || cfg.Discovery.Timeout.Std() != 10*time.Second {
				t.Errorf("Discovery = %+v", cfg.Discovery)
			}
		})
	}
}

func TestParse_AutoReconnectDisabled(t *testing.T) {
	cfg, err := Parse([]byte(yamlConfig), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ic, err := cfg.GetInterface("BENCH").IfaceConfig()
	if err != nil {
		t.Fatal(err)
	}
	if ic.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
	if ic.Target != "BENCH" {
		t.Errorf("Target = %v, want BENCH", ic.Target)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "wrong version",
			data:    "version: 2\n",
			wantErr: "unsupported config version",
		},
		{
			name:    "bad yaml",
			data:    "version: [",
			wantErr: "failed to parse",
		},
		{
			name:    "bad duration",
			data:    "version: 1\ninterfaces:\n  - name: A\n    reconnect_delay: soon\n    stream: {kind: tcp, address: x:1}\n",
			wantErr: "invalid duration",
		},
		{
			name:    "unknown protocol",
			data:    "version: 1\ninterfaces:\n  - name: A\n    stream: {kind: tcp, address: x:1}\n    protocols: [{name: bogus}]\n",
			wantErr: "unknown protocol",
		},
		{
			name:    "bad sync pattern",
			data:    "version: 1\ninterfaces:\n  - name: A\n    stream: {kind: tcp, address: x:1}\n    protocols: [{name: stream, args: [\"0\", \"0xZZ\"]}]\n",
			wantErr: "sync pattern",
		},
		{
			name:    "bad log level",
			data:    "version: 1\nlog_level: loud\ninterfaces:\n  - name: A\n    stream: {kind: tcp, address: x:1}\n",
			wantErr: "unknown log level",
		},
		{
			name:    "unknown stream kind",
			data:    "version: 1\ninterfaces:\n  - name: A\n    stream: {kind: carrier-pigeon, address: x}\n",
			wantErr: "unknown stream kind",
		},
		{
			name:    "missing address",
			data:    "version: 1\ninterfaces:\n  - name: A\n    stream: {kind: tcp}\n",
			wantErr: "address is required",
		},
		{
			name:    "duplicate names",
			data:    "version: 1\ninterfaces:\n  - name: A\n    stream: {kind: tcp, address: x:1}\nlisteners:\n  - name: A\n    port: 1\n",
			wantErr: "duplicate name",
		},
		{
			name:    "packet without id",
			data:    "version: 1\nlisteners:\n  - name: L\n    port: 1\n    packets: [{name: P, offset: 0}]\n",
			wantErr: "id is required",
		},
		{
			name:    "listener half tls",
			data:    "version: 1\nlisteners:\n  - name: L\n    port: 1\n    cert_path: c.pem\n",
			wantErr: "must be set together",
		},
		{
			name:    "nats without url",
			data:    "version: 1\nnats: {prefix: x}\n",
			wantErr: "nats: url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), FormatYAML)
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			if err := Example().Save(path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("temporary file left behind")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(data), "# groundlink configuration file") {
				t.Error("saved file is missing the header comment")
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			radio := loaded.GetInterface("RADIO")
			if radio == nil {
				t.Fatal("interface RADIO missing after round trip")
			}
			if radio.Stream.Address != "/dev/ttyUSB0" {
				t.Errorf("Stream.Address = %v", radio.Stream.Address)
			}
			if radio.ReconnectDelay.Std() != DefaultReconnectDelay {
				t.Errorf("ReconnectDelay = %v, want %v", radio.ReconnectDelay.Std(), DefaultReconnectDelay)
			}
			if len(radio.Packets) != 2 {
				t.Errorf("len(Packets) = %d, want 2", len(radio.Packets))
			}
			if loaded.GetListener("BENCH") == nil {
				t.Error("listener BENCH missing after round trip")
			}
		})
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	got, err := CreateDefaultConfig(path, false)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("CreateDefaultConfig() = %v, want %v", got, path)
	}

	if _, err := CreateDefaultConfig(path, false); err == nil {
		t.Error("CreateDefaultConfig() should refuse to overwrite")
	}
	if _, err := CreateDefaultConfig(path, true); err != nil {
		t.Errorf("CreateDefaultConfig(force) error = %v", err)
	}
}

func TestListenerServerConfig(t *testing.T) {
	cfg, err := Parse([]byte(yamlConfig), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	sc, err := cfg.GetListener("INBOUND").ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig() error = %v", err)
	}
	if sc.Port != 7780 || !sc.Advertise || sc.Kind != stream.KindTCP {
		t.Errorf("ServerConfig() = %+v", sc)
	}
	if sc.Interface.Name != "INBOUND" || sc.Interface.Target != "INBOUND" {
		t.Errorf("Interface = %+v", sc.Interface)
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Std() = %v, want 1m30s", d.Std())
	}
	text, _ := d.MarshalText()
	if string(text) != "1m30s" {
		t.Errorf("MarshalText() = %s, want 1m30s", text)
	}
	if err := d.UnmarshalText([]byte("90")); err == nil {
		t.Error("UnmarshalText(\"90\") should fail without a unit")
	}
}

func BenchmarkGetConfigDir(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GetConfigDir()
	}
}
