package protocol

import "github.com/probeweave/probeengine/field"

const ipv6HeaderSize = 40

func ipv6Fields() field.Table {
	return field.Table{
		{Name: "version", Type: field.U8, Offset: 0, BitOffset: 4, BitWidth: 4},
		{Name: "traffic_class", Type: field.U8, Offset: 0},
		{Name: "flow_label", Type: field.U32, Offset: 0, BitOffset: 0, BitWidth: 0,
			Get: func(segment []byte) (field.Field, error) {
				v := (uint32(segment[1]&0x0f) << 16) | uint32(segment[2])<<8 | uint32(segment[3])
				return field.NewU32("flow_label", v), nil
			},
			Set: func(segment []byte, f field.Field) error {
				v := f.U64()
				if v > 0xfffff {
					return &field.ErrInvalidArgument{Name: "flow_label", Detail: "exceeds 20 bits"}
				}
				segment[1] = (segment[1] & 0xf0) | byte((v>>16)&0x0f)
				segment[2] = byte((v >> 8) & 0xff)
				segment[3] = byte(v & 0xff)
				return nil
			},
		},
		{Name: "length", Type: field.U16, Offset: 4},
		{Name: "protocol", Type: field.U8, Offset: 6},
		{Name: "ttl", Type: field.U8, Offset: 7}, // hop limit, aliased as "ttl" for cross-version uniformity
		{Name: "src_ip", Type: field.String, Offset: 8, Get: ipFieldGetter("src_ip", 8, 16), Set: ipFieldSetter("src_ip", 8, 16)},
		{Name: "dst_ip", Type: field.String, Offset: 24, Get: ipFieldGetter("dst_ip", 24, 16), Set: ipFieldSetter("dst_ip", 24, 16)},
	}
}

// IPv6Descriptor returns the IPv6 (RFC 2460) protocol descriptor. IPv6
// has no header checksum at all.
func IPv6Descriptor() *Descriptor {
	fields := ipv6Fields()

	return &Descriptor{
		Name:   "ipv6",
		Fields: fields,
		WriteDefaultHeader: func(dst []byte) int {
			if dst == nil {
				return ipv6HeaderSize
			}
			for i := range dst[:ipv6HeaderSize] {
				dst[i] = 0
			}
			dst[0] = 0x60 // version 6
			dst[7] = 64   // default hop limit
			return ipv6HeaderSize
		},
		HeaderSize: func(segment []byte) int {
			if segment == nil {
				return 0
			}
			return ipv6HeaderSize
		},
		NextProtocol: func(segment []byte, reg *Registry) *Descriptor {
			return DefaultNextProtocol(fields, segment, reg)
		},
	}
}

// IPv6PseudoHeader builds the RFC 2460 §8.1 pseudo-header used by
// UDP/TCP/ICMPv6 checksums running over IPv6: src(16) + dst(16) +
// upper-layer length(4, big-endian) + zero(3) + next-header(1).
func IPv6PseudoHeader(prevIPSegment []byte, upperLayerLength uint32, nextHeader byte) []byte {
	pseudo := make([]byte, 40)
	copy(pseudo[0:16], prevIPSegment[8:24])
	copy(pseudo[16:32], prevIPSegment[24:40])
	field.PutUint(pseudo[32:36], 4, uint64(upperLayerLength))
	pseudo[39] = nextHeader
	return pseudo
}
