package protocol

// matchICMP implements the shared ICMP reply-matching rule used by
// both icmpv4 and icmpv6: a direct echo-reply matches on identifier
// and sequence; an ICMP error (destination-unreachable or
// time-exceeded, as decided by isError) matches via the quoted
// original header's checksum, same as matchTransportQuoted.
func matchICMP(probeViews, replyViews []View, echoReplyType byte, isError func(byte) bool) bool {
	if len(replyViews) < 2 {
		return false
	}
	replyType, ok := readByteField(replyViews[1], "type")
	if !ok {
		return false
	}
	if replyType == echoReplyType {
		return matchEchoIDSeq(probeViews, replyViews)
	}
	if isError(replyType) {
		return matchTransportQuoted(probeViews, replyViews)
	}
	return false
}

func matchEchoIDSeq(probeViews, replyViews []View) bool {
	if len(probeViews) < 2 || len(replyViews) < 2 {
		return false
	}
	probeID, ok1 := readU16Field(probeViews[1], "identifier")
	replyID, ok2 := readU16Field(replyViews[1], "identifier")
	probeSeq, ok3 := readU16Field(probeViews[1], "sequence")
	replySeq, ok4 := readU16Field(replyViews[1], "sequence")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	return probeID == replyID && probeSeq == replySeq
}

func readByteField(v View, name string) (byte, bool) {
	val, ok := readU16Field(v, name)
	return byte(val), ok
}

func readU16Field(v View, name string) (uint16, bool) {
	if v.Descriptor == nil {
		return 0, false
	}
	pf, ok := v.Descriptor.Fields.Find(name)
	if !ok {
		return 0, false
	}
	f, err := pf.ReadFrom(v.Segment)
	if err != nil {
		return 0, false
	}
	return uint16(f.U64()), true
}
