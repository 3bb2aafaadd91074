// Local interface discovery for GoLanShare
// Finds the host's connected IPv4 address and the matching subnet broadcast
// address by walking the interface list.
package p2p

import (
	"net"

	"github.com/pkg/errors"
)

// ErrNoNetworkInterface is returned from Start when no connected, non-loopback
// IPv4 interface exists on the host.
var ErrNoNetworkInterface = errors.New("no connected network interface")

// localNetwork holds the resolved local address and its broadcast address.
type localNetwork struct {
	ip        net.IP
	broadcast net.IP
}

// resolveLocalNetwork picks the first interface that is up, not loopback, and
// carries an IPv4 address. The subnet broadcast address is derived from the
// interface mask; the limited broadcast address is the fallback when the mask
// is unusable.
func resolveLocalNetwork() (*localNetwork, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "listing interfaces")
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil {
				continue
			}
			return &localNetwork{
				ip:        ip,
				broadcast: broadcastAddr(ip, ipnet.Mask),
			}, nil
		}
	}

	return nil, ErrNoNetworkInterface
}

// broadcastAddr computes the directed broadcast address for ip within mask.
func broadcastAddr(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	mask4 := net.IP(mask).To4()
	if ip4 == nil || mask4 == nil {
		return net.IPv4bcast
	}

	bcast := make(net.IP, net.IPv4len)
	for i := range bcast {
		bcast[i] = ip4[i] | ^mask4[i]
	}
	return bcast
}
