package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	pf := ProtocolField{Name: "ttl", Type: U8, Offset: 8}
	segment := make([]byte, 20)

	require.NoError(t, pf.WriteTo(segment, NewU8("ttl", 64)))
	got, err := pf.ReadFrom(segment)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), got.U64())
}

func TestWriteTooBigIsInvalidArgument(t *testing.T) {
	pf := ProtocolField{Name: "ttl", Type: U8, Offset: 0}
	segment := make([]byte, 4)

	err := pf.WriteTo(segment, NewU16("ttl", 1000))
	var invalid *ErrInvalidArgument
	require.ErrorAs(t, err, &invalid)
}

func TestBitPackedField(t *testing.T) {
	// IPv4 version (bits 4-7) / IHL (bits 0-3) packed into byte 0.
	version := ProtocolField{Name: "version", Type: U8, Offset: 0, BitOffset: 4, BitWidth: 4}
	ihl := ProtocolField{Name: "ihl", Type: U8, Offset: 0, BitOffset: 0, BitWidth: 4}

	segment := make([]byte, 1)
	require.NoError(t, version.WriteTo(segment, NewU8("version", 4)))
	require.NoError(t, ihl.WriteTo(segment, NewU8("ihl", 5)))
	assert.Equal(t, byte(0x45), segment[0])

	v, err := version.ReadFrom(segment)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), v.U64())

	i, err := ihl.ReadFrom(segment)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), i.U64())
}

func TestTableFindNotFound(t *testing.T) {
	table := Table{{Name: "ttl", Type: U8, Offset: 8}}
	_, ok := table.Find("checksum")
	assert.False(t, ok)
	_, ok = table.Find("ttl")
	assert.True(t, ok)
}

func TestU128RoundTrip(t *testing.T) {
	hi, lo := NewU128("x", 1, 2).U128()
	assert.Equal(t, uint64(1), hi)
	assert.Equal(t, uint64(2), lo)
}
