package protocol

import "github.com/probeweave/probeengine/field"

const tcpHeaderSize = 20

func tcpFields() field.Table {
	return field.Table{
		{Name: "src_port", Type: field.U16, Offset: 0},
		{Name: "dst_port", Type: field.U16, Offset: 2},
		{Name: "seq", Type: field.U32, Offset: 4},
		{Name: "ack", Type: field.U32, Offset: 8},
		{Name: "data_offset", Type: field.U8, Offset: 12, BitOffset: 4, BitWidth: 4},
		{Name: "flags", Type: field.U8, Offset: 13},
		{Name: "window", Type: field.U16, Offset: 14},
		{Name: "checksum", Type: field.U16, Offset: 16},
		{Name: "urgent_ptr", Type: field.U16, Offset: 18},
	}
}

// TCP flag bit positions within the "flags" byte.
const (
	TCPFlagFIN = 1 << 0
	TCPFlagSYN = 1 << 1
	TCPFlagRST = 1 << 2
	TCPFlagPSH = 1 << 3
	TCPFlagACK = 1 << 4
	TCPFlagURG = 1 << 5
)

// TCPDescriptor returns the TCP (RFC 793) header-only descriptor. No
// TCP state machine is implemented — TCP is only crafted at the header
// level as a probe carrier, per spec §1 Non-goals.
func TCPDescriptor() *Descriptor {
	fields := tcpFields()

	return &Descriptor{
		Name:     "tcp",
		HasProto: IDTCP,
		Fields:   fields,
		WriteDefaultHeader: func(dst []byte) int {
			if dst == nil {
				return tcpHeaderSize
			}
			for i := range dst[:tcpHeaderSize] {
				dst[i] = 0
			}
			dst[12] = 5 << 4 // data offset 5 (no options)
			dst[13] = TCPFlagSYN
			return tcpHeaderSize
		},
		HeaderSize: func(segment []byte) int {
			if segment == nil {
				return 0
			}
			dataOffset := int(segment[12] >> 4)
			return dataOffset * 4
		},
		WriteChecksum: func(segment []byte, pseudo []byte) bool {
			csum := writeChecksumField(segment, 16, pseudo)
			field.PutUint(segment[16:18], 2, uint64(csum))
			return true
		},
		PseudoHeader: func(prevIPSegment []byte) []byte {
			return ipOrIPv6Pseudo(prevIPSegment, byte(IDTCP))
		},
		Matches: func(probeViews, replyViews []View) bool {
			return matchTransportQuoted(probeViews, replyViews)
		},
	}
}
