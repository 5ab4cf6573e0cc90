package netaddr

import (
	"net"
)

// Fallback is reported when the host has no non-loopback IPv4 address.
const Fallback = "127.0.0.1"

// AddrsFunc enumerates the unicast addresses bound to the host's interfaces.
type AddrsFunc func() ([]net.Addr, error)

// LocalIPv4 finds the first non-loopback IPv4 address of the machine.
// The value is informational: it is printed at startup and never used for binding.
func LocalIPv4() string {
	return Lookup(net.InterfaceAddrs)
}

// Lookup scans the addresses returned by addrs in enumeration order and
// returns the first IPv4 one that is neither loopback nor unspecified.
func Lookup(addrs AddrsFunc) string {
	list, err := addrs()
	if err != nil {
		return Fallback
	}

	for _, addr := range list {
		ip := addrIP(addr)
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
	}

	return Fallback
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
