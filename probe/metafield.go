package probe

import (
	"strings"

	"github.com/probeweave/probeengine/field"
)

// Metafield is a named cross-layer concept (e.g. "flow_id") realized
// by the first Filter in Filters whose RequiredFields all exist on a
// given probe. Filters are tried in order.
type Metafield struct {
	Name    string
	Filters []Filter
}

// Filter is one way of realizing a Metafield: the "protocol.field"
// qualified names that must all be present on the probe, and the
// Realize/Extract functions that write/read the metafield's value
// through those fields.
type Filter struct {
	// RequiredFields are "protocol.field" pairs, e.g. "udp.src_port",
	// that must all resolve to an existing layer+field on the probe
	// for this filter to apply.
	RequiredFields []string

	Realize func(p *Probe, value uint64) error
	Extract func(p *Probe) (uint64, bool)
}

// matches reports whether every one of f's RequiredFields resolves to
// an existing layer on p.
func (f Filter) matches(p *Probe) bool {
	for _, qualified := range f.RequiredFields {
		proto, name, ok := splitQualified(qualified)
		if !ok {
			return false
		}
		l := p.layerNamed(proto)
		if l == nil {
			return false
		}
		if _, ok := l.Descriptor.Fields.Find(name); !ok {
			return false
		}
	}
	return true
}

func splitQualified(s string) (proto, field string, ok bool) {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// DefaultMetafields returns the registry of metafields this core
// ships with: just flow_id, realized per IP version and transport as
// specified.
func DefaultMetafields() map[string]Metafield {
	flowID := Metafield{
		Name: "flow_id",
		Filters: []Filter{
			{
				RequiredFields: []string{"ipv6.flow_label"},
				Realize: func(p *Probe, value uint64) error {
					l := p.layerNamed("ipv6")
					return l.SetField(field.NewU32("flow_label", uint32(value)))
				},
				Extract: func(p *Probe) (uint64, bool) {
					l := p.layerNamed("ipv6")
					if l == nil {
						return 0, false
					}
					f, err := l.GetField("flow_label")
					if err != nil {
						return 0, false
					}
					return f.U64(), true
				},
			},
			{
				RequiredFields: []string{"ipv4.protocol", "udp.src_port", "udp.dst_port"},
				Realize: func(p *Probe, value uint64) error {
					l := p.layerNamed("udp")
					return l.SetField(field.NewU16("src_port", uint16(24000+value)))
				},
				Extract: func(p *Probe) (uint64, bool) {
					l := p.layerNamed("udp")
					if l == nil {
						return 0, false
					}
					f, err := l.GetField("src_port")
					if err != nil || f.U64() < 24000 {
						return 0, false
					}
					return f.U64() - 24000, true
				},
			},
			{
				RequiredFields: []string{"ipv4.protocol", "tcp.src_port", "tcp.dst_port"},
				Realize: func(p *Probe, value uint64) error {
					l := p.layerNamed("tcp")
					return l.SetField(field.NewU16("src_port", uint16(24000+value)))
				},
				Extract: func(p *Probe) (uint64, bool) {
					l := p.layerNamed("tcp")
					if l == nil {
						return 0, false
					}
					f, err := l.GetField("src_port")
					if err != nil || f.U64() < 24000 {
						return 0, false
					}
					return f.U64() - 24000, true
				},
			},
			{
				// ICMP has no ports to tag; the "code" byte is the
				// only free field left once type, identifier and
				// sequence carry their own meaning, so flow_id rides
				// there, truncated to 8 bits.
				RequiredFields: []string{"ipv4.protocol", "icmpv4.code", "icmpv4.checksum"},
				Realize: func(p *Probe, value uint64) error {
					l := p.layerNamed("icmpv4")
					return l.SetField(field.NewU8("code", uint8(value)))
				},
				Extract: func(p *Probe) (uint64, bool) {
					l := p.layerNamed("icmpv4")
					if l == nil {
						return 0, false
					}
					f, err := l.GetField("code")
					if err != nil {
						return 0, false
					}
					return f.U64(), true
				},
			},
		},
	}
	return map[string]Metafield{flowID.Name: flowID}
}
