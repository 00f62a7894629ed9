package network

import (
	"net"

	"golang.org/x/net/icmp"
)

// sniffer holds the two listening sockets the network layer reads
// replies from: one for ICMPv4, one for ICMPv6. Both are bound to the
// wildcard address per spec §6.
type sniffer struct {
	v4 *icmp.PacketConn // nil if unavailable
	v6 *icmp.PacketConn
}

// newSniffer opens both ICMP listening sockets. Both families failing
// is fatal per spec §7 ("inability to ... create sniffer sockets
// aborts construction"); one failing is tolerated.
func newSniffer() (*sniffer, error) {
	s := &sniffer{}

	if conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0"); err == nil {
		s.v4 = conn
	}
	if conn, err := icmp.ListenPacket("ip6:ipv6-icmp", "::"); err == nil {
		s.v6 = conn
	}

	if s.v4 == nil && s.v6 == nil {
		return nil, errNoSniffer
	}
	return s, nil
}

var errNoSniffer = &snifferError{"failed to open either ICMPv4 or ICMPv6 sniffer socket"}

type snifferError struct{ msg string }

func (e *snifferError) Error() string { return "network: sniffer: " + e.msg }

// readV4 reads one packet off the ICMPv4 sniffer into buf, returning
// its length and source address.
func (s *sniffer) readV4(buf []byte) (int, net.Addr, error) {
	return s.v4.ReadFrom(buf)
}

// readV6 reads one packet off the ICMPv6 sniffer into buf.
func (s *sniffer) readV6(buf []byte) (int, net.Addr, error) {
	return s.v6.ReadFrom(buf)
}

// close releases both sockets.
func (s *sniffer) close() {
	if s.v4 != nil {
		s.v4.Close()
	}
	if s.v6 != nil {
		s.v6.Close()
	}
}
