package protocol

import (
	"fmt"
	"net"

	"github.com/probeweave/probeengine/field"
)

// ipFieldGetter returns a field.Getter that reads n bytes at offset and
// formats them as a dotted/colon address string.
func ipFieldGetter(name string, offset, n int) field.Getter {
	return func(segment []byte) (field.Field, error) {
		if offset+n > len(segment) {
			return field.Field{}, &field.ErrInvalidArgument{Name: name, Detail: "offset beyond segment"}
		}
		ip := net.IP(append([]byte(nil), segment[offset:offset+n]...))
		return field.NewString(name, ip.String()), nil
	}
}

// ipFieldSetter returns a field.Setter that parses a dotted/colon
// address string and writes n bytes at offset. A String field holding
// raw address bytes instead of text is rejected as invalid.
func ipFieldSetter(name string, offset, n int) field.Setter {
	return func(segment []byte, f field.Field) error {
		if offset+n > len(segment) {
			return &field.ErrInvalidArgument{Name: name, Detail: "offset beyond segment"}
		}
		ip := net.ParseIP(f.String())
		if ip == nil {
			return &field.ErrInvalidArgument{Name: name, Detail: fmt.Sprintf("invalid address %q", f.String())}
		}
		var raw net.IP
		if n == 4 {
			raw = ip.To4()
		} else {
			raw = ip.To16()
		}
		if raw == nil {
			return &field.ErrInvalidArgument{Name: name, Detail: fmt.Sprintf("address %q is not %d bytes", f.String(), n)}
		}
		copy(segment[offset:offset+n], raw)
		return nil
	}
}
