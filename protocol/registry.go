package protocol

import "fmt"

// Registry is a name- and id-indexed table of protocol Descriptors.
// Registration is idempotent on key collision: the first descriptor
// registered under a given name or id wins. A Registry is read-only
// after construction is complete (BuildDefault or repeated Register
// calls from the embedding program); there is no package-level
// init()-time registration.
type Registry struct {
	byName map[string]*Descriptor
	byID   map[ID]*Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Descriptor),
		byID:   make(map[ID]*Descriptor),
	}
}

// Register adds d to the registry under its Name and (if non-zero)
// HasProto id. If a descriptor is already registered under either key,
// that key is left untouched (first registration wins); the other key
// is still registered if free. This mirrors the spec's
// "registration is idempotent on key collision" rule.
func (r *Registry) Register(d *Descriptor) {
	if _, exists := r.byName[d.Name]; !exists {
		r.byName[d.Name] = d
	}
	if d.HasProto != 0 {
		if _, exists := r.byID[d.HasProto]; !exists {
			r.byID[d.HasProto] = d
		}
	}
}

// ByName looks up a descriptor by its protocol name ("ipv4", "udp", ...).
func (r *Registry) ByName(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// ByID looks up a descriptor by its numeric protocol id.
func (r *Registry) ByID(id ID) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// MustByName is ByName but panics on a missing entry, for callers that
// have already validated the protocol name. Probe construction does
// not use it; SetProtocols calls ByName and returns an error instead.
func (r *Registry) MustByName(name string) *Descriptor {
	d, ok := r.ByName(name)
	if !ok {
		panic(fmt.Sprintf("protocol: unknown protocol %q", name))
	}
	return d
}

// BuildDefault returns a Registry with ipv4, ipv6, udp, tcp, icmpv4,
// and icmpv6 registered — the full built-in protocol set this core
// ships with.
func BuildDefault() *Registry {
	r := NewRegistry()
	r.Register(IPv4Descriptor())
	r.Register(IPv6Descriptor())
	r.Register(UDPDescriptor())
	r.Register(TCPDescriptor())
	r.Register(ICMPv4Descriptor())
	r.Register(ICMPv6Descriptor())
	return r
}
