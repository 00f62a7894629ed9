package network

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// socketPool holds one raw, header-included send socket per address
// family, following the same unix.Socket + IP(V6)_HDRINCL pattern used
// throughout the rest of the example pack's raw-socket probers: the
// kernel is told not to touch our own IP header, since every byte of
// it was already crafted by the probe layer.
type socketPool struct {
	fd4 int // -1 if unavailable
	fd6 int
}

// newSocketPool opens both family sockets. Both families failing is
// fatal, mirroring spec §7's "inability to create ... sniffer sockets
// aborts construction" for the symmetric send side; one family
// failing (e.g. no IPv6 route) is logged and tolerated.
func newSocketPool() (*socketPool, error) {
	sp := &socketPool{fd4: -1, fd6: -1}

	if fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW); err == nil {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err == nil {
			sp.fd4 = fd
		} else {
			unix.Close(fd)
		}
	}

	if fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_RAW, unix.IPPROTO_RAW); err == nil {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_HDRINCL, 1); err == nil {
			sp.fd6 = fd
		} else {
			unix.Close(fd)
		}
	}

	if sp.fd4 < 0 && sp.fd6 < 0 {
		return nil, fmt.Errorf("network: socketpool: failed to open either IPv4 or IPv6 raw send socket")
	}
	return sp, nil
}

// send writes a fully-formed packet (our own IP header included) to
// dst, picking the raw socket matching dst's address family.
func (sp *socketPool) send(dst net.IP, raw []byte) error {
	if ip4 := dst.To4(); ip4 != nil {
		if sp.fd4 < 0 {
			return fmt.Errorf("network: socketpool: no IPv4 send socket")
		}
		var addr unix.SockaddrInet4
		copy(addr.Addr[:], ip4)
		return unix.Sendto(sp.fd4, raw, 0, &addr)
	}
	if sp.fd6 < 0 {
		return fmt.Errorf("network: socketpool: no IPv6 send socket")
	}
	var addr unix.SockaddrInet6
	copy(addr.Addr[:], dst.To16())
	return unix.Sendto(sp.fd6, raw, 0, &addr)
}

// close releases both sockets.
func (sp *socketPool) close() {
	if sp.fd4 >= 0 {
		unix.Close(sp.fd4)
	}
	if sp.fd6 >= 0 {
		unix.Close(sp.fd6)
	}
}
