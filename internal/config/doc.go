// Package config loads the groundlink configuration file.
//
// The file lists interfaces (groundlink dials a device), listeners (devices
// dial groundlink) and optional packet sinks. It may be written in YAML or
// TOML; the encoding is chosen by file extension. Every interface and
// listener carries its protocol chain as a list of {name, args} entries,
// which are built once at load time so bad arguments fail early.
//
// # Configuration File Location
//
// Without --config the file is looked up in the platform directory:
//   - Linux: $XDG_CONFIG_HOME/groundlink or $HOME/.config/groundlink
//   - macOS: $HOME/.config/groundlink
//   - Windows: %LOCALAPPDATA%\groundlink
//
// config.yaml is preferred over config.toml when both exist.
//
// # Example
//
//	version: 1
//	interfaces:
//	  - name: RADIO
//	    target: SAT
//	    stream: {kind: serial, address: /dev/ttyUSB0, baud_rate: 115200}
//	    protocols:
//	      - {name: stream, args: ["0", "0x1ACFFC1D", "true"]}
//	    packets:
//	      - {name: HEALTH, offset: 4, id: "0x01"}
//
// Saves are atomic (write to .tmp, then rename).
package config
