package loop

import (
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeweave/probeengine/algorithm"
	"github.com/probeweave/probeengine/field"
	"github.com/probeweave/probeengine/probe"
	"github.com/probeweave/probeengine/protocol"
)

// requireRoot skips tests that need real raw/ICMP sockets when not
// running with the privilege to open them (CAP_NET_RAW or root).
func requireRoot(t *testing.T) {
	t.Helper()
	if syscall.Geteuid() != 0 {
		t.Skip("requires CAP_NET_RAW/root to open raw and ICMP sockets")
	}
}

func TestLoopWatchdogBroadcastsTermAndConverges(t *testing.T) {
	requireRoot(t)

	reg := protocol.BuildDefault()
	algReg := algorithm.NewRegistry()

	var mu sync.Mutex
	var seen []algorithm.EventKind

	algReg.Register(&algorithm.Descriptor{
		Name: "recorder",
		Handler: func(_ interface{}, ev algorithm.Event, _ *algorithm.Instance) error {
			mu.Lock()
			seen = append(seen, ev.Kind)
			mu.Unlock()
			return nil
		},
	})

	l, err := New(reg, algReg, Options{Timeout: 150 * time.Millisecond})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.RegisterAlgorithm("recorder", nil, nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return within 2s of the configured 150ms watchdog")
	}

	assert.Equal(t, StatusTerminate, l.Status())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, algorithm.EventInit, seen[0])
	assert.Contains(t, seen, algorithm.EventTerm)
}

func TestLoopRegisterAlgorithmUnknownName(t *testing.T) {
	requireRoot(t)

	reg := protocol.BuildDefault()
	algReg := algorithm.NewRegistry()
	l, err := New(reg, algReg, Options{})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.RegisterAlgorithm("does-not-exist", nil, nil, nil)
	assert.Error(t, err)
}

func TestLoopSendProbeTagsCallerID(t *testing.T) {
	requireRoot(t)

	reg := protocol.BuildDefault()
	algReg := algorithm.NewRegistry()

	var captured *probe.Probe
	algReg.Register(&algorithm.Descriptor{
		Name: "sender",
		Handler: func(loopArg interface{}, ev algorithm.Event, inst *algorithm.Instance) error {
			if ev.Kind != algorithm.EventInit {
				return nil
			}
			l := loopArg.(*Loop)
			p := probe.New(reg)
			require.NoError(t, p.SetProtocols("ipv4", "udp"))
			require.NoError(t, p.SetFields(
				field.NewString("dst_ip", "127.0.0.1"),
				field.NewU16("dst_port", 33434),
				field.NewU16("src_port", 53),
				field.NewU8("ttl", 1),
			))
			require.NoError(t, l.SendProbe(inst, p))
			captured = p
			return nil
		},
	})

	l, err := New(reg, algReg, Options{Timeout: 150 * time.Millisecond})
	require.NoError(t, err)
	defer l.Close()

	inst, err := l.RegisterAlgorithm("sender", nil, nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not converge")
	}

	require.NotNil(t, captured)
	assert.Equal(t, uint64(inst.ID), captured.Caller)
}

func TestLoopRaiseEventReachesUserHandler(t *testing.T) {
	requireRoot(t)

	reg := protocol.BuildDefault()
	algReg := algorithm.NewRegistry()

	algReg.Register(&algorithm.Descriptor{
		Name: "raiser",
		Handler: func(loopArg interface{}, ev algorithm.Event, inst *algorithm.Instance) error {
			if ev.Kind != algorithm.EventInit {
				return nil
			}
			return loopArg.(*Loop).RaiseEvent("hello from raiser")
		},
	})

	var mu sync.Mutex
	var userEvents []interface{}

	l, err := New(reg, algReg, Options{
		Timeout: 150 * time.Millisecond,
		UserHandler: func(_ *Loop, ev UserEvent, _ interface{}) {
			mu.Lock()
			userEvents = append(userEvents, ev.Data)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.RegisterAlgorithm("raiser", nil, nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not converge")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, userEvents, 1)
	assert.Equal(t, "hello from raiser", userEvents[0])
}

func TestLoopRaiseErrorDeliversErrorThenTerminated(t *testing.T) {
	requireRoot(t)

	reg := protocol.BuildDefault()
	algReg := algorithm.NewRegistry()

	var mu sync.Mutex
	var seen []algorithm.EventKind

	algReg.Register(&algorithm.Descriptor{
		Name: "erroring",
		Handler: func(loopArg interface{}, ev algorithm.Event, inst *algorithm.Instance) error {
			mu.Lock()
			seen = append(seen, ev.Kind)
			mu.Unlock()
			if ev.Kind == algorithm.EventInit {
				return loopArg.(*Loop).RaiseError(inst, assert.AnError)
			}
			return nil
		},
	})

	l, err := New(reg, algReg, Options{Timeout: 150 * time.Millisecond})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.RegisterAlgorithm("erroring", nil, nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not converge")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 3)
	assert.Equal(t, algorithm.EventInit, seen[0])
	assert.Equal(t, algorithm.EventError, seen[1])
	assert.Equal(t, algorithm.EventTerminated, seen[2])
}

func TestLoopTerminateConverges(t *testing.T) {
	requireRoot(t)

	reg := protocol.BuildDefault()
	algReg := algorithm.NewRegistry()
	algReg.Register(&algorithm.Descriptor{Name: "noop", Handler: func(interface{}, algorithm.Event, *algorithm.Instance) error { return nil }})

	l, err := New(reg, algReg, Options{})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.RegisterAlgorithm("noop", nil, nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, l.Terminate())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not converge after Terminate")
	}
	assert.Equal(t, StatusTerminate, l.Status())
}
