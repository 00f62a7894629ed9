package protocol

import "github.com/probeweave/probeengine/field"

const ipv4HeaderSize = 20

func ipv4Fields() field.Table {
	return field.Table{
		{Name: "version", Type: field.U8, Offset: 0, BitOffset: 4, BitWidth: 4},
		{Name: "ihl", Type: field.U8, Offset: 0, BitOffset: 0, BitWidth: 4},
		{Name: "tos", Type: field.U8, Offset: 1},
		{Name: "length", Type: field.U16, Offset: 2},
		{Name: "identification", Type: field.U16, Offset: 4},
		{Name: "flags", Type: field.U8, Offset: 6, BitOffset: 5, BitWidth: 3},
		{Name: "ttl", Type: field.U8, Offset: 8},
		{Name: "protocol", Type: field.U8, Offset: 9},
		{Name: "checksum", Type: field.U16, Offset: 10},
		{Name: "src_ip", Type: field.String, Offset: 12, Get: ipFieldGetter("src_ip", 12, 4), Set: ipFieldSetter("src_ip", 12, 4)},
		{Name: "dst_ip", Type: field.String, Offset: 16, Get: ipFieldGetter("dst_ip", 16, 4), Set: ipFieldSetter("dst_ip", 16, 4)},
	}
}

// IPv4Descriptor returns the IPv4 (RFC 791) protocol descriptor. IPv4
// has no pseudo-header of its own (it *is* the pseudo-header source
// for UDP/TCP/ICMPv6) and its own header checksum is a plain checksum
// over its own segment, no pseudo-header involved.
func IPv4Descriptor() *Descriptor {
	fields := ipv4Fields()

	return &Descriptor{
		Name:   "ipv4",
		Fields: fields,
		WriteDefaultHeader: func(dst []byte) int {
			if dst == nil {
				return ipv4HeaderSize
			}
			for i := range dst[:ipv4HeaderSize] {
				dst[i] = 0
			}
			dst[0] = 0x45 // version 4, IHL 5 (no options)
			dst[8] = 64   // a conventional default TTL
			return ipv4HeaderSize
		},
		HeaderSize: func(segment []byte) int {
			if segment == nil {
				return 0
			}
			ihl := int(segment[0] & 0x0f)
			return ihl * 4
		},
		WriteChecksum: func(segment []byte, _ []byte) bool {
			csum := writeChecksumField(segment, 10, nil)
			field.PutUint(segment[10:12], 2, uint64(csum))
			return true
		},
		NextProtocol: func(segment []byte, reg *Registry) *Descriptor {
			return DefaultNextProtocol(fields, segment, reg)
		},
	}
}
