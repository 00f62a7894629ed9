package protocol

import (
	"testing"

	"github.com/probeweave/probeengine/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := BuildDefault()

	ipv4, ok := r.ByName("ipv4")
	require.True(t, ok)
	assert.Equal(t, "ipv4", ipv4.Name)

	udp, ok := r.ByID(IDUDP)
	require.True(t, ok)
	assert.Equal(t, "udp", udp.Name)

	_, ok = r.ByName("sctp")
	assert.False(t, ok)
}

func TestRegisterIdempotentFirstWins(t *testing.T) {
	r := NewRegistry()
	first := &Descriptor{Name: "udp", HasProto: IDUDP}
	second := &Descriptor{Name: "udp", HasProto: IDUDP}
	r.Register(first)
	r.Register(second)

	got, ok := r.ByName("udp")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestIPv4DefaultHeader(t *testing.T) {
	d := IPv4Descriptor()
	buf := make([]byte, d.WriteDefaultHeader(nil))
	n := d.WriteDefaultHeader(buf)
	assert.Equal(t, 20, n)
	assert.Equal(t, byte(0x45), buf[0])
}

func TestIPv4FieldSetGet(t *testing.T) {
	d := IPv4Descriptor()
	buf := make([]byte, 20)
	d.WriteDefaultHeader(buf)

	ttlField, ok := d.Fields.Find("ttl")
	require.True(t, ok)
	require.NoError(t, ttlField.WriteTo(buf, field.NewU8("ttl", 1)))

	srcField, _ := d.Fields.Find("src_ip")
	require.NoError(t, srcField.WriteTo(buf, field.NewString("src_ip", "127.0.0.1")))
	got, err := srcField.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", got.String())
}

func TestUDPChecksumNonZero(t *testing.T) {
	ipv4 := IPv4Descriptor()
	udp := UDPDescriptor()

	ipBuf := make([]byte, 20)
	ipv4.WriteDefaultHeader(ipBuf)
	srcField, _ := ipv4.Fields.Find("src_ip")
	dstField, _ := ipv4.Fields.Find("dst_ip")
	require.NoError(t, srcField.WriteTo(ipBuf, field.NewString("src_ip", "127.0.0.1")))
	require.NoError(t, dstField.WriteTo(ipBuf, field.NewString("dst_ip", "127.0.0.1")))
	lengthField, _ := ipv4.Fields.Find("length")
	require.NoError(t, lengthField.WriteTo(ipBuf, field.NewU16("length", 28)))

	udpBuf := make([]byte, 8)
	udp.WriteDefaultHeader(udpBuf)
	dstPort, _ := udp.Fields.Find("dst_port")
	require.NoError(t, dstPort.WriteTo(udpBuf, field.NewU16("dst_port", 33434)))
	udpLen, _ := udp.Fields.Find("length")
	require.NoError(t, udpLen.WriteTo(udpBuf, field.NewU16("length", 8)))

	pseudo := udp.PseudoHeader(ipBuf)
	require.True(t, udp.WriteChecksum(udpBuf, pseudo))

	csumField, _ := udp.Fields.Find("checksum")
	got, err := csumField.ReadFrom(udpBuf)
	require.NoError(t, err)
	assert.NotZero(t, got.U64())

	// Checksum validation: summing pseudo+segment with the checksum
	// field populated (not zeroed) must fold to zero.
	assert.Equal(t, uint16(0), Checksum(pseudo, udpBuf))
}

func TestICMPv4NextProtocolOnlyOnErrors(t *testing.T) {
	r := BuildDefault()
	icmpv4, _ := r.ByName("icmpv4")

	echoReply := []byte{ICMPv4TypeEchoReply, 0, 0, 0, 0, 0, 0, 0}
	assert.Nil(t, icmpv4.NextProtocol(echoReply, r))

	timeExceeded := []byte{ICMPv4TypeTimeExceeded, 0, 0, 0, 0, 0, 0, 0}
	next := icmpv4.NextProtocol(timeExceeded, r)
	require.NotNil(t, next)
	assert.Equal(t, "ipv4", next.Name)

	destUnreach := []byte{ICMPv4TypeDestUnreach, 3, 0, 0, 0, 0, 0, 0}
	next = icmpv4.NextProtocol(destUnreach, r)
	require.NotNil(t, next)
	assert.Equal(t, "ipv4", next.Name)
}

func TestICMPv4EchoMatchesOnIDSeq(t *testing.T) {
	icmpv4 := ICMPv4Descriptor()

	probeSeg := make([]byte, 8)
	icmpv4.WriteDefaultHeader(probeSeg)
	idF, _ := icmpv4.Fields.Find("identifier")
	seqF, _ := icmpv4.Fields.Find("sequence")
	require.NoError(t, idF.WriteTo(probeSeg, field.NewU16("identifier", 42)))
	require.NoError(t, seqF.WriteTo(probeSeg, field.NewU16("sequence", 7)))

	replySeg := make([]byte, 8)
	copy(replySeg, probeSeg)
	replySeg[0] = ICMPv4TypeEchoReply

	probeViews := []View{{}, {Descriptor: icmpv4, Segment: probeSeg}}
	replyViews := []View{{}, {Descriptor: icmpv4, Segment: replySeg}}

	assert.True(t, icmpv4.Matches(probeViews, replyViews))

	replySeg[6] = 0xff // mismatched sequence high byte
	assert.False(t, icmpv4.Matches(probeViews, replyViews))
}
