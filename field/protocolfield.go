package field

import "fmt"

// ErrNotFound is returned when a field name isn't present in a
// protocol's field table; callers (Layer.GetField/SetField) are
// expected to move on to the next layer rather than treat this as
// fatal.
type ErrNotFound struct {
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("field %q: not found", e.Name)
}

// ErrInvalidArgument is returned when a value doesn't fit the field's
// declared type/width.
type ErrInvalidArgument struct {
	Name   string
	Detail string
}

func (e *ErrInvalidArgument) Error() string {
	return fmt.Sprintf("field %q: invalid argument: %s", e.Name, e.Detail)
}

// Getter reads a ProtocolField's value out of a header segment. Used
// for fields whose wire encoding isn't a direct scalar copy (IPv4/IPv6
// addresses, bit-packed fields with a custom meaning).
type Getter func(segment []byte) (Field, error)

// Setter writes a Field's value into a header segment.
type Setter func(segment []byte, f Field) error

// ProtocolField describes one named field of a protocol header: its
// scalar type, its byte offset, and, for bit-packed fields (IPv4
// version/IHL, TCP data offset), its bit offset and width within that
// byte. A Getter/Setter pair overrides the default byte-swapped-copy
// behavior when present.
type ProtocolField struct {
	Name      string
	Type      Type
	Offset    int // byte offset within the header
	BitOffset int // bit offset within the byte at Offset; 0 if byte-aligned
	BitWidth  int // bit width; 0 means "whole Type.Size() bytes"

	Get Getter
	Set Setter
}

// Bytes returns the number of header bytes this field spans when
// reading/writing the default byte-aligned path.
func (pf ProtocolField) Bytes() int {
	return pf.Type.Size()
}

// ReadFrom extracts pf's value from segment, honoring a custom Getter,
// bit-packing, or falling back to a byte-swapped scalar read.
func (pf ProtocolField) ReadFrom(segment []byte) (Field, error) {
	if pf.Get != nil {
		return pf.Get(segment)
	}
	if pf.BitWidth > 0 {
		if pf.Offset >= len(segment) {
			return Field{}, &ErrInvalidArgument{Name: pf.Name, Detail: "offset beyond segment"}
		}
		v := extractBits(segment[pf.Offset], pf.BitOffset, pf.BitWidth)
		return Field{Name: pf.Name, Type: pf.Type, u64: uint64(v)}, nil
	}
	n := pf.Bytes()
	if pf.Offset+n > len(segment) {
		return Field{}, &ErrInvalidArgument{Name: pf.Name, Detail: "offset beyond segment"}
	}
	return Field{Name: pf.Name, Type: pf.Type, u64: GetUint(segment[pf.Offset:pf.Offset+n], n)}, nil
}

// WriteTo writes f into segment at pf's position, honoring a custom
// Setter, bit-packing, or falling back to a byte-swapped scalar write.
func (pf ProtocolField) WriteTo(segment []byte, f Field) error {
	if pf.Set != nil {
		return pf.Set(segment, f)
	}
	if pf.BitWidth > 0 {
		if pf.Offset >= len(segment) {
			return &ErrInvalidArgument{Name: pf.Name, Detail: "offset beyond segment"}
		}
		maxVal := uint64(1)<<uint(pf.BitWidth) - 1
		if f.u64 > maxVal {
			return &ErrInvalidArgument{Name: pf.Name, Detail: "value exceeds bit width"}
		}
		segment[pf.Offset] = insertBits(segment[pf.Offset], pf.BitOffset, pf.BitWidth, byte(f.u64))
		return nil
	}
	n := pf.Bytes()
	if !f.FitsIn(pf.Type) {
		return &ErrInvalidArgument{Name: pf.Name, Detail: "value exceeds field width"}
	}
	if pf.Offset+n > len(segment) {
		return &ErrInvalidArgument{Name: pf.Name, Detail: "offset beyond segment"}
	}
	PutUint(segment[pf.Offset:pf.Offset+n], n, f.u64)
	return nil
}

func extractBits(b byte, bitOffset, width int) byte {
	mask := byte(1<<uint(width)) - 1
	return (b >> uint(bitOffset)) & mask
}

func insertBits(b byte, bitOffset, width int, v byte) byte {
	mask := byte(1<<uint(width)) - 1
	cleared := b &^ (mask << uint(bitOffset))
	return cleared | ((v & mask) << uint(bitOffset))
}

// Table is an ordered collection of ProtocolFields, looked up by name.
type Table []ProtocolField

// Find returns the ProtocolField named name, or (ProtocolField{}, false)
// if the table has no such field.
func (t Table) Find(name string) (ProtocolField, bool) {
	for _, pf := range t {
		if pf.Name == name {
			return pf, true
		}
	}
	return ProtocolField{}, false
}
