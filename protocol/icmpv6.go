package protocol

import "github.com/probeweave/probeengine/field"

const icmpv6HeaderSize = 8

// ICMPv6 type values used by this core (RFC 4443).
const (
	ICMPv6TypeDestUnreach     = 1
	ICMPv6TypeTimeExceeded    = 3
	ICMPv6TypeEchoRequest     = 128
	ICMPv6TypeEchoReply       = 129
	ICMPv6CodeTimeExceededHop = 0
)

func icmpv6Fields() field.Table {
	return field.Table{
		{Name: "type", Type: field.U8, Offset: 0},
		{Name: "code", Type: field.U8, Offset: 1},
		{Name: "checksum", Type: field.U16, Offset: 2},
		{Name: "identifier", Type: field.U16, Offset: 4},
		{Name: "sequence", Type: field.U16, Offset: 6},
	}
}

// ICMPv6Descriptor returns the ICMPv6 (RFC 4443) protocol descriptor.
// Unlike ICMPv4, ICMPv6's checksum is computed over an IPv6
// pseudo-header, per RFC 2460 §8.1.
func ICMPv6Descriptor() *Descriptor {
	fields := icmpv6Fields()

	return &Descriptor{
		Name:     "icmpv6",
		HasProto: IDICMPv6,
		Fields:   fields,
		WriteDefaultHeader: func(dst []byte) int {
			if dst == nil {
				return icmpv6HeaderSize
			}
			for i := range dst[:icmpv6HeaderSize] {
				dst[i] = 0
			}
			dst[0] = ICMPv6TypeEchoRequest
			return icmpv6HeaderSize
		},
		HeaderSize: func(segment []byte) int {
			if segment == nil {
				return 0
			}
			return icmpv6HeaderSize
		},
		WriteChecksum: func(segment []byte, pseudo []byte) bool {
			csum := writeChecksumField(segment, 2, pseudo)
			field.PutUint(segment[2:4], 2, uint64(csum))
			return true
		},
		PseudoHeader: func(prevIPSegment []byte) []byte {
			length := field.GetUint(prevIPSegment[4:6], 2)
			return IPv6PseudoHeader(prevIPSegment, uint32(length), byte(IDICMPv6))
		},
		NextProtocol: func(segment []byte, reg *Registry) *Descriptor {
			if len(segment) < 2 {
				return nil
			}
			t, c := segment[0], segment[1]
			isDestUnreach := t == ICMPv6TypeDestUnreach
			isTimeExceeded := t == ICMPv6TypeTimeExceeded && c == ICMPv6CodeTimeExceededHop
			if !isDestUnreach && !isTimeExceeded {
				return nil
			}
			d, _ := reg.ByName("ipv6")
			return d
		},
		Matches: func(probeViews, replyViews []View) bool {
			return matchICMP(probeViews, replyViews, ICMPv6TypeEchoReply, isICMPv6Error)
		},
	}
}

func isICMPv6Error(t byte) bool {
	return t == ICMPv6TypeDestUnreach || t == ICMPv6TypeTimeExceeded
}
