package discovery

import (
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func newEntry(instance, host string, port int, v4, v6 []net.IP, txt []string) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	entry.HostName = host
	entry.Port = port
	entry.AddrIPv4 = v4
	entry.AddrIPv6 = v6
	entry.Text = txt
	return entry
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name          string
		entry         *zeroconf.ServiceEntry
		wantNil       bool
		wantIP        string
		wantPort      int
		wantInterface string
		wantTarget    string
	}{
		{
			name: "listener with IPv4 and TXT",
			entry: newEntry("groundlink-INST_INT", "groundstation.local.", 7779,
				[]net.IP{net.ParseIP("192.168.4.16")}, nil,
				[]string{"interface=INST_INT", "target=INST", "kind=tcp"}),
			wantIP:        "192.168.4.16",
			wantPort:      7779,
			wantInterface: "INST_INT",
			wantTarget:    "INST",
		},
		{
			name: "IPv6 only",
			entry: newEntry("groundlink-SAT", "sat.local.", 9000,
				nil, []net.IP{net.ParseIP("fe80::1")}, []string{"interface=SAT"}),
			wantIP:        "fe80::1",
			wantPort:      9000,
			wantInterface: "SAT",
		},
		{
			name: "prefers IPv4",
			entry: newEntry("groundlink-SAT", "sat.local.", 9000,
				[]net.IP{net.ParseIP("10.0.0.5")}, []net.IP{net.ParseIP("fe80::2")}, nil),
			wantIP:   "10.0.0.5",
			wantPort: 9000,
		},
		{
			name:    "no address",
			entry:   newEntry("groundlink-SAT", "sat.local.", 9000, nil, nil, nil),
			wantNil: true,
		},
		{
			name:    "no port",
			entry:   newEntry("groundlink-SAT", "sat.local.", 0, []net.IP{net.ParseIP("10.0.0.5")}, nil, nil),
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if ep != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", ep)
				}
				return
			}
			if ep == nil {
				t.Fatal("parseServiceEntry() = nil, want endpoint")
			}

			if ep.IP != tt.wantIP {
				t.Errorf("ep.IP = %v, want %v", ep.IP, tt.wantIP)
			}
			if ep.Port != tt.wantPort {
				t.Errorf("ep.Port = %v, want %v", ep.Port, tt.wantPort)
			}
			if ep.Interface != tt.wantInterface {
				t.Errorf("ep.Interface = %v, want %v", ep.Interface, tt.wantInterface)
			}
			if ep.Target != tt.wantTarget {
				t.Errorf("ep.Target = %v, want %v", ep.Target, tt.wantTarget)
			}
			if ep.Instance != tt.entry.Instance {
				t.Errorf("ep.Instance = %v, want %v", ep.Instance, tt.entry.Instance)
			}
			if time.Since(ep.DiscoveredAt) > time.Second {
				t.Errorf("ep.DiscoveredAt is not recent: %v", ep.DiscoveredAt)
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	got := parseTXT([]string{"interface=INST", "flag", "version=1.0", "k=a=b"})
	want := map[string]string{
		"interface": "INST",
		"flag":      "",
		"version":   "1.0",
		"k":         "a=b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseTXT() = %v, want %v", got, want)
	}
}

func TestEndpoint_Address(t *testing.T) {
	tests := []struct {
		name string
		ep   *Endpoint
		want string
	}{
		{name: "IPv4", ep: &Endpoint{IP: "192.168.4.16", Port: 7779}, want: "192.168.4.16:7779"},
		{name: "IPv6", ep: &Endpoint{IP: "fe80::1", Port: 9000}, want: "[fe80::1]:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ep.Address(); got != tt.want {
				t.Errorf("Address() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEndpoint_String(t *testing.T) {
	ep := &Endpoint{Instance: "groundlink-x", Interface: "INST_INT", Hostname: "gs.local.", IP: "10.0.0.1", Port: 7779}
	want := "groundlink endpoint INST_INT (gs.local.) at 10.0.0.1:7779"
	if got := ep.String(); got != want {
		t.Errorf("String() = %v, want %v", got, want)
	}

	ep.Interface = ""
	want = "groundlink endpoint groundlink-x (gs.local.) at 10.0.0.1:7779"
	if got := ep.String(); got != want {
		t.Errorf("String() = %v, want %v", got, want)
	}
}

func TestEndpoint_GetMetadata(t *testing.T) {
	ep := &Endpoint{Metadata: map[string]string{"kind": "tcp"}}
	if got := ep.GetMetadata("kind"); got != "tcp" {
		t.Errorf("GetMetadata(kind) = %v, want tcp", got)
	}
	if got := ep.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %v, want empty", got)
	}

	var empty Endpoint
	if got := empty.GetMetadata("kind"); got != "" {
		t.Errorf("GetMetadata on nil metadata = %v, want empty", got)
	}
}

func TestAdvertiseInfo_TXT(t *testing.T) {
	info := AdvertiseInfo{Interface: "INST_INT", Target: "INST", Kind: "tcp"}
	want := []string{"interface=INST_INT", "target=INST", "kind=tcp"}
	if got := info.TXT(); !reflect.DeepEqual(got, want) {
		t.Errorf("TXT() = %v, want %v", got, want)
	}
}

func TestAdvertise_RequiresPort(t *testing.T) {
	if _, err := Advertise(AdvertiseInfo{Interface: "INST"}); err == nil {
		t.Error("Advertise() without port should fail")
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}
