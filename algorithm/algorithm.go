// Package algorithm implements the algorithm registry and per-instance
// state the event loop drives: named descriptors carrying a handler
// function, and AlgorithmInstance, the runtime record of one running
// instance of a registered algorithm (options, skeleton probe, opaque
// data, caller, and pending event queue).
package algorithm

import (
	"fmt"
	"sync/atomic"

	"github.com/probeweave/probeengine/probe"
)

// EventKind enumerates the event kinds a handler may receive.
type EventKind int

const (
	EventInit EventKind = iota
	EventProbeReply
	EventProbeTimeout
	EventTerminated
	EventError
	EventAlgorithm
	EventTerm
)

func (k EventKind) String() string {
	switch k {
	case EventInit:
		return "ALGORITHM_INIT"
	case EventProbeReply:
		return "PROBE_REPLY"
	case EventProbeTimeout:
		return "PROBE_TIMEOUT"
	case EventTerminated:
		return "ALGORITHM_TERMINATED"
	case EventError:
		return "ALGORITHM_ERROR"
	case EventAlgorithm:
		return "ALGORITHM_EVENT"
	case EventTerm:
		return "ALGORITHM_TERM"
	default:
		return "UNKNOWN"
	}
}

// ReplyData is the payload of an EventProbeReply event.
type ReplyData struct {
	Probe *probe.Probe
	Reply *probe.Probe
}

// Event is one entry in an instance's pending event queue.
type Event struct {
	Kind   EventKind
	Data   interface{} // *ReplyData, *probe.Probe, error, or handler-defined
	Nested string      // discriminator for EventAlgorithm payloads
}

// Handler is invoked once per queued event, per spec §4.8:
// handler(loop, event, &data, skeleton, options). loop is passed as
// an opaque interface{} here (the concrete *loop.Loop) to avoid an
// import cycle between algorithm and loop; handlers type-assert it to
// the concrete type they were constructed against.
type Handler func(loop interface{}, ev Event, inst *Instance) error

// Descriptor is an immutable, named algorithm registration: its
// handler and a human name.
type Descriptor struct {
	Name    string
	Handler Handler
}

// Registry is a name-indexed table of algorithm Descriptors.
// Registration is idempotent on name collision: first registered wins,
// mirroring protocol.Registry.
type Registry struct {
	byName map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

func (r *Registry) Register(d *Descriptor) {
	if _, exists := r.byName[d.Name]; !exists {
		r.byName[d.Name] = d
	}
}

func (r *Registry) ByName(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

var nextInstanceID int64

// Instance is the runtime record of one running algorithm: an id,
// descriptor, opaque options, skeleton probe (duplicated per probe
// sent), opaque data, the caller instance (nil for user-started
// instances), and a pending event queue drained by the loop.
type Instance struct {
	ID       int64
	Desc     *Descriptor
	Options  interface{}
	Skeleton *probe.Probe
	Data     interface{}
	Caller   *Instance

	pending []Event
	done    bool
}

// NewInstance allocates an instance with a fresh monotonically
// increasing id. caller is nil for a user-started instance.
func NewInstance(desc *Descriptor, options interface{}, skeleton *probe.Probe, caller *Instance) *Instance {
	return &Instance{
		ID:       atomic.AddInt64(&nextInstanceID, 1),
		Desc:     desc,
		Options:  options,
		Skeleton: skeleton,
		Caller:   caller,
	}
}

// Enqueue appends an event to this instance's pending queue. A
// terminated instance silently drops further events, since
// ALGORITHM_TERM "causes the remaining events for that instance to be
// ignored" per spec §4.9.
func (inst *Instance) Enqueue(ev Event) {
	if inst.done {
		return
	}
	inst.pending = append(inst.pending, ev)
	if ev.Kind == EventTerm {
		inst.done = true
	}
}

// Drain invokes fn once per pending event, in FIFO order, then clears
// the queue. Returns the first error encountered, after draining every
// event (handlers are expected to run to completion regardless of a
// sibling event's failure within the same drain).
func (inst *Instance) Drain(fn func(Event) error) error {
	events := inst.pending
	inst.pending = nil
	var firstErr error
	for _, ev := range events {
		if err := fn(ev); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("algorithm instance %d: %w", inst.ID, err)
		}
	}
	return firstErr
}

// Pending reports whether this instance has queued events awaiting
// dispatch.
func (inst *Instance) Pending() bool {
	return len(inst.pending) > 0
}
