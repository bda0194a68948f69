// Package discovery finds and advertises groundlink endpoints over mDNS.
//
// A listener started with advertising enabled registers a
// "_groundlink._tcp" service whose TXT records name the interface, target
// and stream kind it serves. The discover command browses for these
// services so a client interface can be pointed at a device without
// knowing its address.
//
// # Usage Example
//
//	endpoints, err := discovery.Scan(5 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, ep := range endpoints {
//	    fmt.Println(ep.Interface, ep.Address())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Endpoints must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
