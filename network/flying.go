package network

import (
	"container/list"
	"time"

	"github.com/probeweave/probeengine/probe"
)

// flyingEntry is one in-flight probe: sent, tagged, awaiting a reply
// or its timeout deadline.
type flyingEntry struct {
	probe   *probe.Probe
	tag     uint16
	sentAt  time.Time
	timeout time.Duration
}

func (e *flyingEntry) deadline() time.Time {
	return e.sentAt.Add(e.timeout)
}

// flyingProbes is the network layer's in-flight table, ordered by
// send time (earliest first) so the timeout timer only ever needs to
// inspect the head.
type flyingProbes struct {
	order *list.List // of *flyingEntry, oldest first
	byTag map[uint16]*list.Element
}

func newFlyingProbes() *flyingProbes {
	return &flyingProbes{order: list.New(), byTag: make(map[uint16]*list.Element)}
}

func (f *flyingProbes) push(e *flyingEntry) {
	el := f.order.PushBack(e)
	f.byTag[e.tag] = el
}

// head returns the earliest-sent entry, or nil if empty.
func (f *flyingProbes) head() *flyingEntry {
	el := f.order.Front()
	if el == nil {
		return nil
	}
	return el.Value.(*flyingEntry)
}

// popHead removes and returns the earliest-sent entry.
func (f *flyingProbes) popHead() *flyingEntry {
	el := f.order.Front()
	if el == nil {
		return nil
	}
	f.order.Remove(el)
	e := el.Value.(*flyingEntry)
	delete(f.byTag, e.tag)
	return e
}

// byTagLookup finds the in-flight entry tagged tag, if any.
func (f *flyingProbes) byTagLookup(tag uint16) *flyingEntry {
	el, ok := f.byTag[tag]
	if !ok {
		return nil
	}
	return el.Value.(*flyingEntry)
}

// remove deletes e from the table.
func (f *flyingProbes) remove(e *flyingEntry) {
	for el := f.order.Front(); el != nil; el = el.Next() {
		if el.Value.(*flyingEntry) == e {
			f.order.Remove(el)
			break
		}
	}
	delete(f.byTag, e.tag)
}

// all returns every in-flight entry, oldest first. Used only for the
// echo-reply fallback match path, where there is no tag to index by.
func (f *flyingProbes) all() []*flyingEntry {
	out := make([]*flyingEntry, 0, f.order.Len())
	for el := f.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*flyingEntry))
	}
	return out
}

func (f *flyingProbes) len() int {
	return f.order.Len()
}
