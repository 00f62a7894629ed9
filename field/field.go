// Package field implements typed key/value carriers (Field) and the
// descriptors used to read and write them at a byte offset within a
// protocol header (ProtocolField).
package field

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type tags the scalar kind a Field or ProtocolField carries.
type Type int

const (
	U8 Type = iota
	U16
	U32
	U64
	U128
	Double
	String
	Generator
)

func (t Type) String() string {
	switch t {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case U128:
		return "u128"
	case Double:
		return "double"
	case String:
		return "string"
	case Generator:
		return "generator"
	default:
		return "unknown"
	}
}

// Size returns the on-the-wire size in bytes for fixed-size scalar
// types, or 0 for String/Generator whose size is context-dependent.
func (t Type) Size() int {
	switch t {
	case U8:
		return 1
	case U16:
		return 2
	case U32:
		return 4
	case U64:
		return 8
	case U128:
		return 16
	case Double:
		return 8
	default:
		return 0
	}
}

// Field is a named scalar value an algorithm or the consistency pass
// wants written into a probe. Exactly one of the value accessors below
// is meaningful, selected by Type.
type Field struct {
	Name string
	Type Type

	u128hi uint64
	u128lo uint64
	u64    uint64
	f64    float64
	str    string
}

// NewU8/U16/U32/U64 construct scalar fields of the matching width.
func NewU8(name string, v uint8) Field   { return Field{Name: name, Type: U8, u64: uint64(v)} }
func NewU16(name string, v uint16) Field { return Field{Name: name, Type: U16, u64: uint64(v)} }
func NewU32(name string, v uint32) Field { return Field{Name: name, Type: U32, u64: uint64(v)} }
func NewU64(name string, v uint64) Field { return Field{Name: name, Type: U64, u64: v} }

// NewU128 constructs a 128-bit field from its high and low 64-bit
// halves, high bits first on the wire (used for IPv6 addresses).
func NewU128(name string, hi, lo uint64) Field {
	return Field{Name: name, Type: U128, u128hi: hi, u128lo: lo}
}

// NewFromUint constructs a scalar field of the given type from a raw
// uint64 magnitude, used when a value arrives pre-widened (e.g. a
// big-endian byte run decoded by the caller) rather than through a
// width-specific constructor.
func NewFromUint(name string, t Type, v uint64) Field {
	return Field{Name: name, Type: t, u64: v}
}

// NewDouble constructs a floating point field (used by generator
// parameters such as "mean").
func NewDouble(name string, v float64) Field {
	return Field{Name: name, Type: Double, f64: v}
}

// NewString constructs a variable-length string/byte-carrying field.
func NewString(name string, v string) Field {
	return Field{Name: name, Type: String, str: v}
}

// U64 returns the field's value widened to uint64. Panics if Type is
// not one of U8/U16/U32/U64.
func (f Field) U64() uint64 {
	switch f.Type {
	case U8, U16, U32, U64:
		return f.u64
	default:
		panic(fmt.Sprintf("field %q: U64() called on %s field", f.Name, f.Type))
	}
}

// U128 returns the field's high/low 64-bit halves. Panics if Type is
// not U128.
func (f Field) U128() (hi, lo uint64) {
	if f.Type != U128 {
		panic(fmt.Sprintf("field %q: U128() called on %s field", f.Name, f.Type))
	}
	return f.u128hi, f.u128lo
}

// Double returns the field's float64 value. Panics if Type is not
// Double.
func (f Field) Double() float64 {
	if f.Type != Double {
		panic(fmt.Sprintf("field %q: Double() called on %s field", f.Name, f.Type))
	}
	return f.f64
}

// String returns the field's string value. Panics if Type is not
// String.
func (f Field) String() string {
	if f.Type != String {
		panic(fmt.Sprintf("field %q: String() called on %s field", f.Name, f.Type))
	}
	return f.str
}

// FitsIn reports whether f's value can be represented in a field of
// type t without truncation. Used by ProtocolField.WriteTo to produce the
// spec's "value too big for the field type -> invalid argument" error
// instead of silently truncating.
func (f Field) FitsIn(t Type) bool {
	switch t {
	case U8:
		return f.u64 <= math.MaxUint8
	case U16:
		return f.u64 <= math.MaxUint16
	case U32:
		return f.u64 <= math.MaxUint32
	case U64:
		return true
	default:
		return true
	}
}

// PutUint writes v into dst, which must be exactly n bytes, in network
// byte order.
func PutUint(dst []byte, n int, v uint64) {
	switch n {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(dst, v)
	default:
		panic(fmt.Sprintf("field: PutUint: unsupported width %d", n))
	}
}

// GetUint reads an n-byte network-byte-order unsigned integer from src.
func GetUint(src []byte, n int) uint64 {
	switch n {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(src))
	case 4:
		return uint64(binary.BigEndian.Uint32(src))
	case 8:
		return binary.BigEndian.Uint64(src)
	default:
		panic(fmt.Sprintf("field: GetUint: unsupported width %d", n))
	}
}
