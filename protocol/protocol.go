// Package protocol implements the protocol registry: immutable,
// process-wide descriptors for IPv4, IPv6, UDP, TCP, ICMPv4, and
// ICMPv6, each able to write its default header, measure its header
// size, compute its checksum (with an optional pseudo-header), name
// its next protocol, and decide whether a reply matches a probe.
package protocol

import "github.com/probeweave/probeengine/field"

// ID is a protocol's wire-format numeric identifier (the IPv4
// "protocol" / IPv6 "next header" byte: 1=ICMP, 6=TCP, 17=UDP,
// 58=ICMPv6). IPv4 and IPv6 themselves are not addressed by an ID in
// this scheme since nothing ever dispatches "to" them by number here;
// they are always a probe's first layer.
type ID uint8

const (
	IDICMPv4 ID = 1
	IDTCP    ID = 6
	IDUDP    ID = 17
	IDICMPv6 ID = 58
)

// View is a read-only (descriptor, segment) pair representing one
// layer of a probe or reply, used only to plumb enough context into
// Descriptor.Matches without this package depending on the layer or
// probe packages.
type View struct {
	Descriptor *Descriptor
	Segment    []byte
}

// Descriptor is an immutable, process-wide protocol record. Every
// method-shaped field is a pure function of its arguments; Descriptors
// carry no mutable state and are safe to share across probes.
type Descriptor struct {
	Name     string
	ProtoID  ID
	HasProto ID // 0 if the descriptor has no numeric ID (ipv4, ipv6)

	Fields field.Table

	// WriteDefaultHeader writes this protocol's default header into
	// dst and returns its size. If dst is nil, it returns the size
	// without writing anything.
	WriteDefaultHeader func(dst []byte) int

	// HeaderSize returns the header size for the header present at the
	// start of segment (0 if segment is nil). Protocols with a
	// variable-length header (IPv4 IHL, TCP data offset) inspect
	// segment; fixed-size protocols ignore it.
	HeaderSize func(segment []byte) int

	// WriteChecksum zeroes this protocol's checksum field within
	// segment, computes the Internet checksum of pseudo++segment (see
	// PseudoHeader), and writes the result back into the checksum
	// field in network byte order. Returns false if this protocol has
	// no checksum field.
	WriteChecksum func(segment []byte, pseudo []byte) bool

	// PseudoHeader builds the pseudo-header this protocol's checksum
	// is computed over, given the preceding IP layer's segment. Nil
	// for protocols that need none (ICMPv4, and the IP protocols
	// themselves).
	PseudoHeader func(prevIPSegment []byte) []byte

	// NextProtocol reports which Descriptor governs the layer
	// following segment, or nil if there is none (terminal protocol
	// layer, payload follows). The default implementation (used by
	// ipv4/ipv6) reads the "protocol" field from segment and looks it
	// up in reg; icmpv4/icmpv6 override this to special-case quoted
	// IP datagrams.
	NextProtocol func(segment []byte, reg *Registry) *Descriptor

	// Matches reports whether replyViews is an acceptable reply to a
	// probe whose own layers are probeViews. Both slices are IP-rooted
	// (index 0 is the ipv4/ipv6 layer, regardless of which descriptor's
	// Matches is being invoked), not relative to this descriptor's own
	// layer.
	Matches func(probeViews, replyViews []View) bool
}

// DefaultNextProtocol reads the "protocol" field out of segment and
// looks up the matching descriptor in reg. Shared by ipv4 and ipv6.
func DefaultNextProtocol(fields field.Table, segment []byte, reg *Registry) *Descriptor {
	pf, ok := fields.Find("protocol")
	if !ok {
		return nil
	}
	f, err := pf.ReadFrom(segment)
	if err != nil {
		return nil
	}
	d, ok := reg.ByID(ID(f.U64()))
	if !ok {
		return nil
	}
	return d
}
