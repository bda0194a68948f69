package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	appName        = "groundlink"
	configFile     = "config.yaml"
	configFileTOML = "config.toml"
)

// Format is the on-disk encoding of a config file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrNoConfig is returned by FindConfigPath when no config file exists.
var ErrNoConfig = errors.New("no config file found")

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/groundlink or $HOME/.config/groundlink
//   - macOS: $HOME/.config/groundlink
//   - Windows: %LOCALAPPDATA%\groundlink
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			return filepath.Join(xdgConfigHome, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the default path of the YAML configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// FindConfigPath resolves the file to load. An explicit path is returned as
// is. Otherwise config.yaml, then config.toml, in the config directory.
func FindConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range []string{configFile, configFileTOML} {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (run 'groundlink config init')", ErrNoConfig, configDir)
}

// FormatForPath picks the encoding from the file extension. Anything that
// is not .toml is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads, parses, defaults and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the given format, fills defaults and validates.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := &Config{}

	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", cfg.Version, CurrentVersion)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode marshals the config in the given format.
func (c *Config) Encode(format Format) ([]byte, error) {
	if format == FormatTOML {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(c)
}

// Save writes the config to path atomically, in the format implied by the
// extension.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Encode(FormatForPath(path))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# groundlink configuration file
# Interfaces open a stream to a device; listeners accept device connections.
# Each protocol list is applied in order on read and in reverse on write.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig writes an example configuration to path, or to the
// default location when path is empty. An existing file is not replaced
// unless force is set. It returns the path written.
func CreateDefaultConfig(path string, force bool) (string, error) {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return "", err
		}
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}
	return path, Example().Save(path)
}

// Example returns a configuration with one serial interface and one TCP
// listener framed on the CCSDS attached sync marker.
func Example() *Config {
	cfg := NewConfig()
	cfg.LogLevel = "info"
	cfg.Interfaces = []*Interface{
		{
			Name:   "RADIO",
			Target: "SAT",
			Stream: Stream{
				Kind:     "serial",
				Address:  "/dev/ttyUSB0",
				BaudRate: 115200,
			},
			Protocols: []Protocol{
				{Name: "stream", Args: []string{"0", "0x1ACFFC1D", "true"}},
			},
			Packets: []Packet{
				{Name: "HEALTH", Offset: 4, ID: "0x01"},
				{Name: "EVENT", Offset: 4, ID: "0x02"},
			},
			ReconnectDelay: Duration(DefaultReconnectDelay),
		},
	}
	cfg.Listeners = []*Listener{
		{
			Name:      "BENCH",
			Target:    "SAT",
			Port:      7779,
			Advertise: true,
			Protocols: []Protocol{
				{Name: "stream", Args: []string{"0", "0x1ACFFC1D", "true"}},
			},
		},
	}
	cfg.NATS = &NATS{URL: "nats://127.0.0.1:4222", Prefix: "groundlink", Commands: true}
	return cfg
}
