package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// TXT record keys published by an advertised listener.
const (
	TxtInterface = "interface"
	TxtTarget    = "target"
	TxtKind      = "kind"
	TxtVersion   = "version"
)

// Endpoint is a groundlink listener found on the network.
type Endpoint struct {
	// Instance is the mDNS service instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "groundstation.local.")
	Hostname string

	// IP is the endpoint address, IPv4 preferred
	IP string

	// Port is the listener's TCP port
	Port int

	// Interface and Target come from TXT records; empty when not published
	Interface string
	Target    string

	// Metadata holds every TXT record
	Metadata map[string]string

	// DiscoveredAt is when the endpoint was seen
	DiscoveredAt time.Time
}

// String returns a human-readable description.
func (e *Endpoint) String() string {
	name := e.Interface
	if name == "" {
		name = e.Instance
	}
	return fmt.Sprintf("groundlink endpoint %s (%s) at %s", name, e.Hostname, e.Address())
}

// Address returns host:port suitable for a tcp stream.
func (e *Endpoint) Address() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// GetMetadata returns a TXT value, or "" when absent.
func (e *Endpoint) GetMetadata(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}
