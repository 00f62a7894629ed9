package protocol

import "github.com/probeweave/probeengine/field"

const icmpv4HeaderSize = 8

// ICMPv4 type values used by this core (RFC 792).
const (
	ICMPv4TypeEchoReply       = 0
	ICMPv4TypeDestUnreach     = 3
	ICMPv4TypeEchoRequest     = 8
	ICMPv4TypeTimeExceeded    = 11
	ICMPv4CodeTimeExceededTTL = 0
)

func icmpv4Fields() field.Table {
	return field.Table{
		{Name: "type", Type: field.U8, Offset: 0},
		{Name: "code", Type: field.U8, Offset: 1},
		{Name: "checksum", Type: field.U16, Offset: 2},
		{Name: "identifier", Type: field.U16, Offset: 4},
		{Name: "sequence", Type: field.U16, Offset: 6},
	}
}

// ICMPv4Descriptor returns the ICMPv4 (RFC 792) protocol descriptor.
// ICMPv4 has no pseudo-header: its checksum covers only its own
// segment.
func ICMPv4Descriptor() *Descriptor {
	fields := icmpv4Fields()

	return &Descriptor{
		Name:     "icmpv4",
		HasProto: IDICMPv4,
		Fields:   fields,
		WriteDefaultHeader: func(dst []byte) int {
			if dst == nil {
				return icmpv4HeaderSize
			}
			for i := range dst[:icmpv4HeaderSize] {
				dst[i] = 0
			}
			dst[0] = ICMPv4TypeEchoRequest
			return icmpv4HeaderSize
		},
		HeaderSize: func(segment []byte) int {
			if segment == nil {
				return 0
			}
			return icmpv4HeaderSize
		},
		WriteChecksum: func(segment []byte, _ []byte) bool {
			csum := writeChecksumField(segment, 2, nil)
			field.PutUint(segment[2:4], 2, uint64(csum))
			return true
		},
		NextProtocol: func(segment []byte, reg *Registry) *Descriptor {
			if len(segment) < 2 {
				return nil
			}
			t, c := segment[0], segment[1]
			isDestUnreach := t == ICMPv4TypeDestUnreach
			isTimeExceeded := t == ICMPv4TypeTimeExceeded && c == ICMPv4CodeTimeExceededTTL
			if !isDestUnreach && !isTimeExceeded {
				return nil
			}
			d, _ := reg.ByName("ipv4")
			return d
		},
		Matches: func(probeViews, replyViews []View) bool {
			return matchICMP(probeViews, replyViews, ICMPv4TypeEchoReply, isICMPv4Error)
		},
	}
}

func isICMPv4Error(t byte) bool {
	return t == ICMPv4TypeDestUnreach || t == ICMPv4TypeTimeExceeded
}
