package transport

import (
	"fmt"
	"net"
)

// PortMap is the gateway port pair of one channel.
type PortMap struct {
	Channel      int
	BasePort     int
	DataPort     int
	SettingsPort int
}

// MapPorts derives data = base + 2*(channel-1) and settings = data + 1.
func MapPorts(channel, basePort int) (PortMap, error) {
	if channel < 1 {
		return PortMap{}, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	if basePort < 1 {
		return PortMap{}, fmt.Errorf("%w: base %d", ErrInvalidPort, basePort)
	}
	data := basePort + 2*(channel-1)
	settings := data + 1
	if settings > 65535 {
		return PortMap{}, fmt.Errorf("%w: channel %d on base %d maps to %d", ErrInvalidPort, channel, basePort, settings)
	}
	return PortMap{
		Channel:      channel,
		BasePort:     basePort,
		DataPort:     data,
		SettingsPort: settings,
	}, nil
}

// ResolveLocalIP picks the local address to bind for target: the first
// candidate sharing target's first three octets, else the first non-loopback
// candidate, else 127.0.0.1.
func ResolveLocalIP(target net.IP, candidates []net.IP) net.IP {
	t4 := target.To4()
	var fallback net.IP
	for _, ip := range candidates {
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		if t4 != nil && ip4[0] == t4[0] && ip4[1] == t4[1] && ip4[2] == t4[2] {
			return ip4
		}
		if fallback == nil {
			fallback = ip4
		}
	}
	if fallback != nil {
		return fallback
	}
	return net.IPv4(127, 0, 0, 1).To4()
}

// InterfaceIPs lists the IPv4 addresses of interfaces that are up.
func InterfaceIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("transport: list interfaces: %w", err)
	}
	out := make([]net.IP, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			out = append(out, ipNet.IP.To4())
		}
	}
	return out, nil
}
