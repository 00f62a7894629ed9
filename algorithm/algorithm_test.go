package algorithm

import "testing"

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	d := &Descriptor{Name: "ping"}
	r.Register(d)

	got, ok := r.ByName("ping")
	if !ok || got != d {
		t.Fatalf("ByName(%q) = %v, %v; want %v, true", "ping", got, ok, d)
	}
	if _, ok := r.ByName("mda"); ok {
		t.Fatalf("ByName(%q) found an unregistered descriptor", "mda")
	}
}

func TestRegisterIdempotentFirstWins(t *testing.T) {
	r := NewRegistry()
	first := &Descriptor{Name: "ping"}
	second := &Descriptor{Name: "ping"}
	r.Register(first)
	r.Register(second)

	got, _ := r.ByName("ping")
	if got != first {
		t.Fatalf("Register overwrote the first registration under a colliding name")
	}
}

func TestInstanceIDsAreMonotonicallyIncreasing(t *testing.T) {
	d := &Descriptor{Name: "ping"}
	a := NewInstance(d, nil, nil, nil)
	b := NewInstance(d, nil, nil, nil)
	if b.ID <= a.ID {
		t.Fatalf("instance ids not monotonically increasing: %d then %d", a.ID, b.ID)
	}
}

func TestDrainInvokesInFIFOOrder(t *testing.T) {
	inst := NewInstance(&Descriptor{Name: "ping"}, nil, nil, nil)
	inst.Enqueue(Event{Kind: EventInit})
	inst.Enqueue(Event{Kind: EventProbeReply})
	inst.Enqueue(Event{Kind: EventProbeTimeout})

	var seen []EventKind
	if err := inst.Drain(func(ev Event) error {
		seen = append(seen, ev.Kind)
		return nil
	}); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	want := []EventKind{EventInit, EventProbeReply, EventProbeTimeout}
	if len(seen) != len(want) {
		t.Fatalf("Drain invoked %d times, want %d", len(seen), len(want))
	}
	for i, k := range want {
		if seen[i] != k {
			t.Fatalf("event %d = %v, want %v", i, seen[i], k)
		}
	}
	if inst.Pending() {
		t.Fatalf("Pending() true after Drain emptied the queue")
	}
}

func TestEnqueueAfterTermIgnoresFurtherEvents(t *testing.T) {
	inst := NewInstance(&Descriptor{Name: "ping"}, nil, nil, nil)
	inst.Enqueue(Event{Kind: EventTerm})
	inst.Enqueue(Event{Kind: EventProbeReply})

	var seen []EventKind
	inst.Drain(func(ev Event) error {
		seen = append(seen, ev.Kind)
		return nil
	})
	if len(seen) != 1 || seen[0] != EventTerm {
		t.Fatalf("events after ALGORITHM_TERM were not ignored: %v", seen)
	}
}
