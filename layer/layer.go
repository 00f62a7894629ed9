// Package layer implements Layer: a non-owning view of one protocol
// header (or the trailing payload) within a Probe's packet buffer.
package layer

import (
	"github.com/probeweave/probeengine/field"
	"github.com/probeweave/probeengine/packet"
	"github.com/probeweave/probeengine/protocol"
)

// Layer is a (offset, size) window into a Packet's buffer, refreshed
// on every access so it stays valid across the owning Packet's
// Resize. A Layer with a nil Descriptor is the trailing payload layer.
type Layer struct {
	Descriptor *protocol.Descriptor
	pkt        *packet.Packet
	offset     int
	size       int
}

// New returns a Layer viewing pkt[offset:offset+size] under d. Pass a
// nil d for a payload layer.
func New(d *protocol.Descriptor, pkt *packet.Packet, offset, size int) *Layer {
	return &Layer{Descriptor: d, pkt: pkt, offset: offset, size: size}
}

// IsPayload reports whether this is the trailing payload layer.
func (l *Layer) IsPayload() bool {
	return l.Descriptor == nil
}

// Offset returns the layer's current byte offset within the packet.
func (l *Layer) Offset() int {
	return l.offset
}

// Size returns the layer's current byte length.
func (l *Layer) Size() int {
	return l.size
}

// SetBounds updates the layer's view after a structural change to the
// owning packet (layer insertion, payload resize).
func (l *Layer) SetBounds(offset, size int) {
	l.offset = offset
	l.size = size
}

// Segment returns the live byte slice this layer currently views. The
// slice aliases the owning Packet's buffer and must not be retained
// across a Resize.
func (l *Layer) Segment() []byte {
	buf := l.pkt.Bytes()
	end := l.offset + l.size
	if end > len(buf) {
		end = len(buf)
	}
	if l.offset > end {
		return nil
	}
	return buf[l.offset:end]
}

// GetField reads field name out of this layer's segment. Returns
// *field.ErrNotFound if this protocol has no such field, so callers
// (Probe.SetField et al.) can move on to the next layer.
func (l *Layer) GetField(name string) (field.Field, error) {
	if l.IsPayload() {
		return field.Field{}, &field.ErrNotFound{Name: name}
	}
	pf, ok := l.Descriptor.Fields.Find(name)
	if !ok {
		return field.Field{}, &field.ErrNotFound{Name: name}
	}
	return pf.ReadFrom(l.Segment())
}

// SetField writes f's value into the field named f.Name. Returns
// *field.ErrNotFound if unrecognized, *field.ErrInvalidArgument if f's
// value doesn't fit the field.
func (l *Layer) SetField(f field.Field) error {
	if l.IsPayload() {
		return &field.ErrNotFound{Name: f.Name}
	}
	pf, ok := l.Descriptor.Fields.Find(f.Name)
	if !ok {
		return &field.ErrNotFound{Name: f.Name}
	}
	return pf.WriteTo(l.Segment(), f)
}

// WriteField writes a raw byte-swapped value into the named field by
// constructing a Field of that field's declared type from raw bytes.
// raw is interpreted big-endian to match on-wire field presentation.
func (l *Layer) WriteField(name string, raw []byte) error {
	if l.IsPayload() {
		return &field.ErrNotFound{Name: name}
	}
	pf, ok := l.Descriptor.Fields.Find(name)
	if !ok {
		return &field.ErrNotFound{Name: name}
	}
	if len(raw) > 8 {
		return &field.ErrInvalidArgument{Name: name, Detail: "raw value wider than 64 bits"}
	}
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return pf.WriteTo(l.Segment(), field.NewFromUint(name, pf.Type, v))
}

// Extract reads the named field into dst, leaving dst untouched on
// error.
func (l *Layer) Extract(name string, dst *field.Field) error {
	f, err := l.GetField(name)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// WritePayload writes b into the payload layer's segment starting at
// offset, growing the owning packet if needed. It is rejected on a
// non-payload layer.
func (l *Layer) WritePayload(b []byte, offset int) error {
	if !l.IsPayload() {
		return &field.ErrInvalidArgument{Name: "payload", Detail: "not a payload layer"}
	}
	need := offset + len(b)
	if need > l.size {
		growth := need - l.size
		l.pkt.Resize(l.pkt.Size() + growth)
		l.size = need
	}
	seg := l.Segment()
	copy(seg[offset:], b)
	return nil
}
