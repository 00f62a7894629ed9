package protocol

import "github.com/probeweave/probeengine/field"

const udpHeaderSize = 8

func udpFields() field.Table {
	return field.Table{
		{Name: "src_port", Type: field.U16, Offset: 0},
		{Name: "dst_port", Type: field.U16, Offset: 2},
		{Name: "length", Type: field.U16, Offset: 4},
		{Name: "checksum", Type: field.U16, Offset: 6},
	}
}

// UDPDescriptor returns the UDP (RFC 768) protocol descriptor.
func UDPDescriptor() *Descriptor {
	fields := udpFields()

	return &Descriptor{
		Name:     "udp",
		HasProto: IDUDP,
		Fields:   fields,
		WriteDefaultHeader: func(dst []byte) int {
			if dst == nil {
				return udpHeaderSize
			}
			for i := range dst[:udpHeaderSize] {
				dst[i] = 0
			}
			return udpHeaderSize
		},
		HeaderSize: func(segment []byte) int {
			if segment == nil {
				return 0
			}
			return udpHeaderSize
		},
		WriteChecksum: func(segment []byte, pseudo []byte) bool {
			csum := writeChecksumField(segment, 6, pseudo)
			field.PutUint(segment[6:8], 2, uint64(csum))
			return true
		},
		PseudoHeader: func(prevIPSegment []byte) []byte {
			return ipOrIPv6Pseudo(prevIPSegment, byte(IDUDP))
		},
		Matches: func(probeViews, replyViews []View) bool {
			return matchTransportQuoted(probeViews, replyViews)
		},
	}
}

// ipOrIPv6Pseudo builds the correct transport-checksum pseudo-header
// given the preceding IP layer's raw segment, detected by its version
// nibble, for any protocol whose IDs byte goes in the "next header"
// slot (UDP=17, TCP=6, ICMPv6=58).
func ipOrIPv6Pseudo(prevIPSegment []byte, nextHeader byte) []byte {
	if len(prevIPSegment) == 0 {
		return nil
	}
	version := prevIPSegment[0] >> 4
	if version == 6 {
		length := field.GetUint(prevIPSegment[4:6], 2)
		return IPv6PseudoHeader(prevIPSegment, uint32(length), nextHeader)
	}
	return ipv4PseudoHeader(prevIPSegment, nextHeader)
}

// ipv4PseudoHeader builds the RFC 793/768 IPv4 pseudo-header: src(4) +
// dst(4) + zero(1) + protocol(1) + upper-layer length(2).
func ipv4PseudoHeader(prevIPSegment []byte, protocolID byte) []byte {
	pseudo := make([]byte, 12)
	copy(pseudo[0:4], prevIPSegment[12:16])
	copy(pseudo[4:8], prevIPSegment[16:20])
	pseudo[9] = protocolID
	totalLen := field.GetUint(prevIPSegment[2:4], 2)
	ihl := int(prevIPSegment[0]&0x0f) * 4
	upperLen := uint64(0)
	if totalLen >= uint64(ihl) {
		upperLen = totalLen - uint64(ihl)
	}
	field.PutUint(pseudo[10:12], 2, upperLen)
	return pseudo
}

// matchTransportQuoted implements the generic UDP/TCP reply-matching
// rule: a reply matches if its 4th layer (index 3, the quoted transport header
// inside an ICMPv4/ICMPv6 error) has a checksum field equal to the
// probe's own 1st transport layer checksum field — the tag embedded by
// the network layer (see spec §4.7 "Tagging"). The network layer
// itself performs the authoritative tag lookup against flying_probes;
// this predicate is the per-protocol sanity check layered on top.
// probeViews/replyViews are IP-rooted (index 0 is the IP layer), so
// the probe's own transport layer is found by scanning from index 1
// rather than assumed to sit at index 0.
func matchTransportQuoted(probeViews, replyViews []View) bool {
	probeChecksum, ok := firstTransportChecksum(probeViews)
	if !ok {
		return false
	}
	// The reply is expected to be: ipv4/ipv6, icmpv4/icmpv6, ipv4/ipv6, udp/tcp.
	if len(replyViews) < 4 {
		return false
	}
	replyChecksum, ok := readChecksum(replyViews[3])
	if !ok {
		return false
	}
	return probeChecksum == replyChecksum
}

// firstTransportChecksum scans probeViews from index 1 (past the IP
// layer) for the first view carrying a checksum field, and returns it.
func firstTransportChecksum(views []View) (uint64, bool) {
	for i := 1; i < len(views); i++ {
		if csum, ok := readChecksum(views[i]); ok {
			return csum, true
		}
	}
	return 0, false
}

func readChecksum(v View) (uint64, bool) {
	if v.Descriptor == nil {
		return 0, false
	}
	pf, ok := v.Descriptor.Fields.Find("checksum")
	if !ok {
		return 0, false
	}
	f, err := pf.ReadFrom(v.Segment)
	if err != nil {
		return 0, false
	}
	return f.U64(), true
}
