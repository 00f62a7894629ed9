package probe

import (
	"testing"

	"github.com/probeweave/probeengine/field"
	"github.com/probeweave/probeengine/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *protocol.Registry {
	return protocol.BuildDefault()
}

func TestSetProtocolsIPv4UDP(t *testing.T) {
	reg := newTestRegistry()
	p := New(reg)
	require.NoError(t, p.SetProtocols("ipv4", "udp"))

	require.NoError(t, p.SetField(field.NewString("dst_ip", "192.0.2.1")))
	require.NoError(t, p.SetField(field.NewString("src_ip", "192.0.2.2")))
	require.NoError(t, p.UpdateFields())

	ipv4 := p.layerNamed("ipv4")
	udp := p.layerNamed("udp")
	require.NotNil(t, ipv4)
	require.NotNil(t, udp)

	length, err := ipv4.GetField("length")
	require.NoError(t, err)
	assert.Equal(t, uint64(28), length.U64())

	proto, err := ipv4.GetField("protocol")
	require.NoError(t, err)
	assert.Equal(t, uint64(17), proto.U64())

	csum, err := udp.GetField("checksum")
	require.NoError(t, err)
	assert.NotZero(t, csum.U64())

	assert.Equal(t, byte(4), p.Packet().Bytes()[0]>>4)
}

func TestWrapPacketRoundTrip(t *testing.T) {
	reg := newTestRegistry()
	p := New(reg)
	require.NoError(t, p.SetProtocols("ipv4", "udp"))
	require.NoError(t, p.SetField(field.NewString("dst_ip", "192.0.2.1")))
	require.NoError(t, p.SetField(field.NewString("src_ip", "192.0.2.2")))
	require.NoError(t, p.UpdateFields())

	wrapped, err := WrapPacket(reg, p.Packet())
	require.NoError(t, err)
	require.Len(t, wrapped.layers, 3) // ipv4, udp, payload

	assert.Equal(t, "ipv4", wrapped.layers[0].Descriptor.Name)
	assert.Equal(t, "udp", wrapped.layers[1].Descriptor.Name)
	assert.True(t, wrapped.layers[2].IsPayload())
}

func TestFlowIDMetafieldOnIPv4UDP(t *testing.T) {
	reg := newTestRegistry()
	p := New(reg)
	require.NoError(t, p.SetProtocols("ipv4", "udp"))

	require.NoError(t, p.SetMetafield(field.NewU64("flow_id", 17)))

	udp := p.layerNamed("udp")
	srcPort, err := udp.GetField("src_port")
	require.NoError(t, err)
	assert.Equal(t, uint64(24017), srcPort.U64())

	got, err := p.Metafield("flow_id")
	require.NoError(t, err)
	assert.Equal(t, uint64(17), got)
}

func TestSetFieldsFallsBackToMetafield(t *testing.T) {
	reg := newTestRegistry()
	p := New(reg)
	require.NoError(t, p.SetProtocols("ipv4", "udp"))

	require.NoError(t, p.SetFields(
		field.NewString("dst_ip", "192.0.2.1"),
		field.NewU64("flow_id", 5),
	))

	got, err := p.Metafield("flow_id")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got)
}

func TestPayloadResizeGrowsPacket(t *testing.T) {
	reg := newTestRegistry()
	p := New(reg)
	require.NoError(t, p.SetProtocols("ipv4", "udp"))

	before := p.Packet().Size()
	require.NoError(t, p.PayloadResize(10))
	assert.Equal(t, before+10, p.Packet().Size())

	ipv4 := p.layerNamed("ipv4")
	length, err := ipv4.GetField("length")
	require.NoError(t, err)
	assert.Equal(t, uint64(before+10), length.U64())
}

func TestCloneIsIndependent(t *testing.T) {
	reg := newTestRegistry()
	p := New(reg)
	require.NoError(t, p.SetProtocols("ipv4", "udp"))
	require.NoError(t, p.SetField(field.NewString("dst_ip", "192.0.2.1")))
	require.NoError(t, p.UpdateFields())

	clone := p.Clone()
	require.NoError(t, clone.SetField(field.NewString("dst_ip", "192.0.2.9")))
	require.NoError(t, clone.UpdateFields())

	origIPv4 := p.layerNamed("ipv4")
	cloneIPv4 := clone.layerNamed("ipv4")
	origDst, _ := origIPv4.GetField("dst_ip")
	cloneDst, _ := cloneIPv4.GetField("dst_ip")

	assert.Equal(t, "192.0.2.1", origDst.String())
	assert.Equal(t, "192.0.2.9", cloneDst.String())
}
