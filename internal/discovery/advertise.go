package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/groundlink/internal/logging"
	"go.uber.org/zap"
)

// Advertisement is a registered mDNS service. Call Shutdown to withdraw it.
type Advertisement struct {
	server *zeroconf.Server
}

// AdvertiseInfo describes what a listener publishes.
type AdvertiseInfo struct {
	Instance  string
	Port      int
	Interface string
	Target    string
	Kind      string
	Version   string
}

// TXT returns the TXT records for info, skipping empty values.
func (info AdvertiseInfo) TXT() []string {
	var txt []string
	add := func(k, v string) {
		if v != "" {
			txt = append(txt, k+"="+v)
		}
	}
	add(TxtInterface, info.Interface)
	add(TxtTarget, info.Target)
	add(TxtKind, info.Kind)
	add(TxtVersion, info.Version)
	return txt
}

// Advertise registers a "_groundlink._tcp" service on every multicast
// capable network interface.
func Advertise(info AdvertiseInfo) (*Advertisement, error) {
	if info.Instance == "" {
		info.Instance = "groundlink-" + info.Interface
	}
	if info.Port <= 0 {
		return nil, fmt.Errorf("cannot advertise %s without a port", info.Instance)
	}

	server, err := zeroconf.Register(info.Instance, ServiceType, ServiceDomain, info.Port, info.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising endpoint",
		zap.String("instance", info.Instance),
		zap.String("service", ServiceType),
		zap.Int("port", info.Port),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement.
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
