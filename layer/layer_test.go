package layer

import (
	"testing"

	"github.com/probeweave/probeengine/field"
	"github.com/probeweave/probeengine/packet"
	"github.com/probeweave/probeengine/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIPv4Packet(t *testing.T) (*packet.Packet, *protocol.Descriptor) {
	t.Helper()
	d := protocol.IPv4Descriptor()
	buf := make([]byte, d.WriteDefaultHeader(nil))
	d.WriteDefaultHeader(buf)
	return packet.NewFromBytes(buf), d
}

func TestLayerGetSetField(t *testing.T) {
	pkt, d := newIPv4Packet(t)
	l := New(d, pkt, 0, pkt.Size())

	require.NoError(t, l.SetField(field.NewU8("ttl", 64)))
	got, err := l.GetField("ttl")
	require.NoError(t, err)
	assert.Equal(t, uint64(64), got.U64())
}

func TestLayerUnknownFieldIsNotFound(t *testing.T) {
	pkt, d := newIPv4Packet(t)
	l := New(d, pkt, 0, pkt.Size())

	_, err := l.GetField("bogus")
	require.Error(t, err)
	var nf *field.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestLayerInvalidArgumentOnOverflow(t *testing.T) {
	pkt, d := newIPv4Packet(t)
	l := New(d, pkt, 0, pkt.Size())

	err := l.SetField(field.NewU64("ttl", 1<<40))
	require.Error(t, err)
	var ia *field.ErrInvalidArgument
	assert.ErrorAs(t, err, &ia)
}

func TestPayloadLayerWriteGrowsPacket(t *testing.T) {
	pkt := packet.New()
	pkt.Resize(0)
	l := New(nil, pkt, 0, 0)

	require.NoError(t, l.WritePayload([]byte("abc"), 0))
	assert.Equal(t, 3, pkt.Size())
	assert.Equal(t, []byte("abc"), pkt.Bytes())

	require.NoError(t, l.WritePayload([]byte("XY"), 1))
	assert.Equal(t, "aXY", string(pkt.Bytes()))
}

func TestNonPayloadLayerRejectsWritePayload(t *testing.T) {
	pkt, d := newIPv4Packet(t)
	l := New(d, pkt, 0, pkt.Size())

	err := l.WritePayload([]byte("x"), 0)
	require.Error(t, err)
}

func TestExtractMirrorsGetField(t *testing.T) {
	pkt, d := newIPv4Packet(t)
	l := New(d, pkt, 0, pkt.Size())
	require.NoError(t, l.SetField(field.NewU8("ttl", 9)))

	var out field.Field
	require.NoError(t, l.Extract("ttl", &out))
	assert.Equal(t, uint64(9), out.U64())
}
