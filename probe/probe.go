// Package probe implements Probe: an owning, ordered composition of
// protocol layers over one packet, with dissection, field access,
// metafield realization, and the consistency pass that keeps length,
// next-protocol, and checksum fields coherent after any mutation.
package probe

import (
	"fmt"
	"net"
	"time"

	"github.com/google/go-cpy/cpy"

	"github.com/probeweave/probeengine/field"
	"github.com/probeweave/probeengine/layer"
	"github.com/probeweave/probeengine/packet"
	"github.com/probeweave/probeengine/protocol"
)

// Probe is an ordered list of layers over one owned packet: zero or
// more protocol layers followed by exactly one payload layer.
type Probe struct {
	reg        *protocol.Registry
	metafields map[string]Metafield

	layers []*layer.Layer
	pkt    *packet.Packet

	delay Delay

	Caller uint64 // originating algorithm instance id; 0 if user-initiated

	QueuedAt time.Time
	SentAt   time.Time
	RecvAt   time.Time

	LeftToSend int
}

// New returns an empty probe: no layers, an empty packet, backed by
// reg for protocol lookups and the built-in flow_id metafield.
func New(reg *protocol.Registry) *Probe {
	return &Probe{
		reg:        reg,
		metafields: DefaultMetafields(),
		pkt:        packet.New(),
		delay:      NoDelay(),
	}
}

// Packet returns the probe's owned packet.
func (p *Probe) Packet() *packet.Packet {
	return p.pkt
}

// Layers returns the probe's layers in order, protocol layers first,
// payload layer last.
func (p *Probe) Layers() []*layer.Layer {
	return p.layers
}

// SetDelay installs d as the probe's scheduled-send delay.
func (p *Probe) SetDelay(d Delay) {
	p.delay = d
}

// NextDelay advances and returns the probe's delay in seconds, or -1
// if the probe is best-effort.
func (p *Probe) NextDelay() float64 {
	return p.delay.Next()
}

// IsScheduled reports whether the probe carries a delay at all (scalar
// or generator); best-effort probes report false.
func (p *Probe) IsScheduled() bool {
	return p.delay.set
}

// Recurring reports whether the probe's delay is generator-backed, so
// the scheduler should reinsert it (with a freshly advanced delay)
// after each firing instead of retiring it.
func (p *Probe) Recurring() bool {
	return p.delay.recurring()
}

// SetProtocols replaces the probe's layer list: one protocol layer per
// name (in order), each with its default header written, followed by
// a zero-sized payload layer. Returns an error if any name is
// unregistered.
func (p *Probe) SetProtocols(names ...string) error {
	descs := make([]*protocol.Descriptor, len(names))
	total := 0
	for i, name := range names {
		d, ok := p.reg.ByName(name)
		if !ok {
			return fmt.Errorf("probe: unknown protocol %q", name)
		}
		descs[i] = d
		total += d.WriteDefaultHeader(nil)
	}

	p.pkt = packet.New()
	p.pkt.Resize(total)
	buf := p.pkt.Bytes()

	p.layers = make([]*layer.Layer, 0, len(descs)+1)
	offset := 0
	for _, d := range descs {
		size := d.WriteDefaultHeader(buf[offset:])
		p.layers = append(p.layers, layer.New(d, p.pkt, offset, size))
		offset += size
	}
	p.layers = append(p.layers, layer.New(nil, p.pkt, offset, 0))

	return p.UpdateFields()
}

// WrapPacket dissects pkt into a new probe by walking protocol
// descriptors via NextProtocol, starting from the IPv4/IPv6 header
// identified by the first byte's high nibble. Any undissected tail
// becomes the payload layer, possibly empty if the packet was
// truncated.
func WrapPacket(reg *protocol.Registry, pkt *packet.Packet) (*Probe, error) {
	buf := pkt.Bytes()
	if len(buf) == 0 {
		return nil, fmt.Errorf("probe: WrapPacket: empty packet")
	}

	var first *protocol.Descriptor
	switch buf[0] >> 4 {
	case 4:
		first, _ = reg.ByName("ipv4")
	case 6:
		first, _ = reg.ByName("ipv6")
	default:
		return nil, fmt.Errorf("probe: WrapPacket: unrecognized IP version nibble %#x", buf[0]>>4)
	}
	if first == nil {
		return nil, fmt.Errorf("probe: WrapPacket: ip descriptor not registered")
	}

	p := &Probe{reg: reg, metafields: DefaultMetafields(), pkt: pkt, delay: NoDelay()}

	d := first
	offset := 0
	for d != nil && offset < len(buf) {
		segment := buf[offset:]
		hsize := d.HeaderSize(segment)
		if hsize <= 0 || offset+hsize > len(buf) {
			break
		}
		p.layers = append(p.layers, layer.New(d, pkt, offset, hsize))
		var next *protocol.Descriptor
		if d.NextProtocol != nil {
			next = d.NextProtocol(segment[:hsize], reg)
		}
		offset += hsize
		d = next
	}
	p.layers = append(p.layers, layer.New(nil, pkt, offset, len(buf)-offset))

	return p, nil
}

// layerNamed returns the first layer governed by the protocol named
// name, or nil.
func (p *Probe) layerNamed(name string) *layer.Layer {
	for _, l := range p.layers {
		if l.Descriptor != nil && l.Descriptor.Name == name {
			return l
		}
	}
	return nil
}

// Views returns the (descriptor, segment) pairs for the probe's
// protocol layers (payload excluded), in order — the shape
// Descriptor.Matches expects.
func (p *Probe) Views() []protocol.View {
	views := make([]protocol.View, 0, len(p.layers))
	for _, l := range p.layers {
		if l.Descriptor == nil {
			continue
		}
		views = append(views, protocol.View{Descriptor: l.Descriptor, Segment: l.Segment()})
	}
	return views
}

// ExtractDstIP reads the "dst_ip" field off the probe's first (IP)
// layer, caches it on the owned packet via packet.SetDstIP, and
// returns it. The network layer calls this right before sendto (spec
// §4.7: "extract dst_ip into the packet's cached destination"), since
// UpdateFields only maintains length/protocol/checksum coherence, not
// the packet's separate destination-address cache.
func (p *Probe) ExtractDstIP() (net.IP, error) {
	if len(p.layers) == 0 {
		return nil, fmt.Errorf("probe: extract dst_ip: no layers")
	}
	f, err := p.layers[0].GetField("dst_ip")
	if err != nil {
		return nil, fmt.Errorf("probe: extract dst_ip: %w", err)
	}
	ip := net.ParseIP(f.String())
	if ip == nil {
		return nil, fmt.Errorf("probe: extract dst_ip: invalid address %q", f.String())
	}
	p.pkt.SetDstIP(ip)
	return ip, nil
}

// SetFieldExt applies f to the first layer, starting at index depth,
// that recognizes its name.
func (p *Probe) SetFieldExt(depth int, f field.Field) error {
	for i := depth; i < len(p.layers); i++ {
		err := p.layers[i].SetField(f)
		if err == nil {
			return nil
		}
		if _, notFound := err.(*field.ErrNotFound); !notFound {
			return err
		}
	}
	return &field.ErrNotFound{Name: f.Name}
}

// SetField is SetFieldExt starting from the first layer.
func (p *Probe) SetField(f field.Field) error {
	return p.SetFieldExt(0, f)
}

// SetMetafield realizes named metafield f.Name with value f.U64()
// against the first Filter whose required fields are all present,
// consulting the probe's metafield registry.
func (p *Probe) SetMetafield(f field.Field) error {
	mf, ok := p.metafields[f.Name]
	if !ok {
		return &field.ErrNotFound{Name: f.Name}
	}
	for _, filt := range mf.Filters {
		if filt.matches(p) {
			return filt.Realize(p, f.U64())
		}
	}
	return &field.ErrNotFound{Name: f.Name}
}

// Metafield extracts the named metafield's current value via the
// first matching filter.
func (p *Probe) Metafield(name string) (uint64, error) {
	mf, ok := p.metafields[name]
	if !ok {
		return 0, &field.ErrNotFound{Name: name}
	}
	for _, filt := range mf.Filters {
		if filt.matches(p) {
			v, ok := filt.Extract(p)
			if !ok {
				return 0, &field.ErrNotFound{Name: name}
			}
			return v, nil
		}
	}
	return 0, &field.ErrNotFound{Name: name}
}

// SetFields applies each field via SetField, falling back to
// SetMetafield when no layer recognizes the name directly.
func (p *Probe) SetFields(fields ...field.Field) error {
	for _, f := range fields {
		if err := p.SetField(f); err != nil {
			if _, notFound := err.(*field.ErrNotFound); notFound {
				if mErr := p.SetMetafield(f); mErr != nil {
					return mErr
				}
				continue
			}
			return err
		}
	}
	return nil
}

// UpdateFields runs the consistency pass: per-layer finalize, then
// next-protocol linkage, then length fields, then (in reverse order)
// checksums.
func (p *Probe) UpdateFields() error {
	if err := p.finalize(); err != nil {
		return err
	}

	for i := 0; i+1 < len(p.layers); i++ {
		next := p.layers[i+1]
		if next.Descriptor == nil {
			continue
		}
		if _, ok := p.layers[i].Descriptor.Fields.Find("protocol"); !ok {
			continue
		}
		if err := p.layers[i].SetField(field.NewU8("protocol", uint8(next.Descriptor.HasProto))); err != nil {
			return err
		}
	}

	size := p.pkt.Size()
	for _, l := range p.layers {
		if l.Descriptor == nil {
			l.SetBounds(l.Offset(), size-l.Offset())
			continue
		}
		if _, ok := l.Descriptor.Fields.Find("length"); ok {
			if err := l.SetField(field.NewU16("length", uint16(size-l.Offset()))); err != nil {
				return err
			}
		}
	}

	ipSegment := p.ipSegment()
	for i := len(p.layers) - 1; i >= 0; i-- {
		l := p.layers[i]
		if l.Descriptor == nil || l.Descriptor.WriteChecksum == nil {
			continue
		}
		var pseudo []byte
		if l.Descriptor.PseudoHeader != nil && ipSegment != nil {
			pseudo = l.Descriptor.PseudoHeader(ipSegment)
		}
		l.Descriptor.WriteChecksum(l.Segment(), pseudo)
	}

	return nil
}

// ipSegment returns the packet's first (IP) layer's segment, or nil
// if the probe has no layers yet.
func (p *Probe) ipSegment() []byte {
	if len(p.layers) == 0 {
		return nil
	}
	return p.layers[0].Segment()
}

// finalize runs per-layer fill-in logic that must run before the rest
// of the consistency pass: currently, filling an unset IPv6 source
// address by dialing a throwaway UDP socket toward the destination and
// reading the kernel-chosen local address, mirroring the standard Go
// idiom for route-local-address discovery without an explicit route
// lookup.
func (p *Probe) finalize() error {
	if len(p.layers) == 0 {
		return nil
	}
	ipLayer := p.layers[0]
	if ipLayer.Descriptor == nil || ipLayer.Descriptor.Name != "ipv6" {
		return nil
	}
	f, err := ipLayer.GetField("src_ip")
	if err == nil && f.String() != "" && f.String() != "::" {
		return nil
	}
	dstField, err := ipLayer.GetField("dst_ip")
	if err != nil || dstField.String() == "" {
		return nil
	}
	dst := net.ParseIP(dstField.String())
	if dst == nil {
		return nil
	}
	conn, err := net.Dial("udp6", net.JoinHostPort(dst.String(), "1"))
	if err != nil {
		return nil // best effort; no usable route yet
	}
	defer conn.Close()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil
	}
	return ipLayer.SetField(field.NewString("src_ip", local.IP.String()))
}

// PayloadResize changes the packet size to make the payload layer
// exactly n bytes and re-runs the consistency pass.
func (p *Probe) PayloadResize(n int) error {
	if len(p.layers) == 0 {
		return fmt.Errorf("probe: PayloadResize: no layers")
	}
	payload := p.layers[len(p.layers)-1]
	newSize := payload.Offset() + n
	p.pkt.Resize(newSize)
	payload.SetBounds(payload.Offset(), n)
	return p.UpdateFields()
}

// WritePayload writes b into the payload layer at offset, growing the
// payload (and packet) if needed, then re-runs the consistency pass.
func (p *Probe) WritePayload(b []byte, offset int) error {
	if len(p.layers) == 0 {
		return fmt.Errorf("probe: WritePayload: no layers")
	}
	payload := p.layers[len(p.layers)-1]
	if err := payload.WritePayload(b, offset); err != nil {
		return err
	}
	return p.UpdateFields()
}

// Clone returns a deep copy of the probe: its own packet buffer and
// layer views remapped onto it, sharing nothing with the original.
// Per-send bookkeeping (queue/send/recv timestamps) is reset on the
// clone since it has not yet been queued.
// Clone returns an independent copy of p: scalar and generator-backed
// fields (delay, Caller, timestamps) are deep-copied via go-cpy, but
// the packet buffer and per-layer segment views are address-dependent
// and so are excluded from that pass and rebuilt explicitly against a
// freshly cloned packet, rather than trusted to go-cpy's reflection-
// based traversal of unexported fields.
func (p *Probe) Clone() *Probe {
	shallow := *p
	shallow.pkt = nil
	shallow.layers = nil

	copier := cpy.New()
	cloned, ok := copier.Copy(&shallow).(*Probe)
	if !ok {
		panic("probe: Clone: go-cpy returned an unexpected type")
	}

	cloned.pkt = p.pkt.Clone()
	cloned.layers = make([]*layer.Layer, len(p.layers))
	for i, l := range p.layers {
		cloned.layers[i] = layer.New(l.Descriptor, cloned.pkt, l.Offset(), l.Size())
	}

	cloned.QueuedAt = time.Time{}
	cloned.SentAt = time.Time{}
	cloned.RecvAt = time.Time{}
	return cloned
}
