package netmon

import (
	"context"
	"net"
	"time"
)

// listInterfaces is swapped in tests
var listInterfaces = net.Interfaces

// interfaceAddrs is swapped in tests
var interfaceAddrs = func(iface net.Interface) ([]net.Addr, error) {
	return iface.Addrs()
}

// HasRoutableInterface reports whether any non-loopback interface is up
// and carries a global unicast address
func HasRoutableInterface() bool {
	ifaces, err := listInterfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := interfaceAddrs(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

// InterfaceSource samples the interface table on an interval. It is the
// portable fallback for platforms without route change notifications.
type InterfaceSource struct {
	Interval time.Duration
	Check    func() bool
}

// Updates implements Source
func (s InterfaceSource) Updates(ctx context.Context) (<-chan bool, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	check := s.Check
	if check == nil {
		check = HasRoutableInterface
	}

	ch := make(chan bool, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case ch <- check():
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
