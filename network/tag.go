package network

import (
	"encoding/binary"

	"github.com/probeweave/probeengine/field"
	"github.com/probeweave/probeengine/probe"
)

// firstTransportLayerIndex returns the index of p's first layer past
// the IP layer that is not the payload layer (the UDP/TCP/ICMP layer
// whose checksum field carries the tag), or -1 if p has none.
func firstTransportLayerIndex(p *probe.Probe) int {
	layers := p.Layers()
	for i, l := range layers {
		if i == 0 || l.IsPayload() {
			continue
		}
		if _, ok := l.Descriptor.Fields.Find("checksum"); ok {
			return i
		}
	}
	return -1
}

// tagProbe assigns tag to p: the transport layer's checksum field is
// overwritten with tag (this is what a matching ICMP error's quoted
// inner header will echo back), and the checksum it displaced is
// preserved at payload offset 0 so the true value isn't lost, per the
// scheme in spec §4.7. The match itself never needs that preserved
// copy — it compares checksum fields directly — but the spec
// preserves the mechanism without stronger guarantees about surviving
// middleboxes.
func tagProbe(p *probe.Probe, tag uint16) error {
	idx := firstTransportLayerIndex(p)
	if idx < 0 {
		return nil
	}
	layers := p.Layers()
	transport := layers[idx]

	// Reserve the two payload bytes first: growing the payload re-runs
	// the consistency pass, so the checksum read afterwards is the one
	// the tag displaces.
	if err := p.WritePayload(make([]byte, 2), 0); err != nil {
		return err
	}
	trueChecksum, err := transport.GetField("checksum")
	if err != nil {
		return err
	}

	var saved [2]byte
	binary.BigEndian.PutUint16(saved[:], uint16(trueChecksum.U64()))
	if err := layers[len(layers)-1].WritePayload(saved[:], 0); err != nil {
		return err
	}

	return transport.SetField(field.NewU16("checksum", tag))
}

// probeTag reads the tag currently stored in p's transport checksum
// field (valid only after tagProbe has run).
func probeTag(p *probe.Probe) (uint16, bool) {
	idx := firstTransportLayerIndex(p)
	if idx < 0 {
		return 0, false
	}
	f, err := p.Layers()[idx].GetField("checksum")
	if err != nil {
		return 0, false
	}
	return uint16(f.U64()), true
}

// replyTag extracts the 16-bit tag from an ICMP-error reply's quoted
// inner header: the checksum field of the reply's 4th layer
// (ip/icmp/ip/transport).
func replyTag(reply *probe.Probe) (uint16, bool) {
	layers := reply.Layers()
	if len(layers) < 4 {
		return 0, false
	}
	quoted := layers[3]
	if quoted.Descriptor == nil {
		return 0, false
	}
	f, err := quoted.GetField("checksum")
	if err != nil {
		return 0, false
	}
	return uint16(f.U64()), true
}
