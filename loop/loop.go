// Package loop implements the cooperative event loop: an epoll-like
// readiness multiplexer over the network layer's fds, a shared
// algorithm-instance event queue, a user-facing event queue, and a
// signal source, dispatching to per-algorithm handlers and a
// user-supplied handler in turn (spec §4.9).
package loop

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/probeweave/probeengine/algorithm"
	"github.com/probeweave/probeengine/log"
	"github.com/probeweave/probeengine/network"
	"github.com/probeweave/probeengine/probe"
	"github.com/probeweave/probeengine/protocol"
)

// Status is the loop's run state.
type Status int

const (
	StatusRunning Status = iota
	StatusInterrupted
	StatusTerminate
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusInterrupted:
		return "INTERRUPTED"
	case StatusTerminate:
		return "TERMINATE"
	default:
		return "UNKNOWN"
	}
}

// UserEvent is one entry in the loop's user-facing queue, raised by
// an algorithm handler via (*Loop).RaiseEvent and drained by the
// user's own handler (spec §2, §4.8).
type UserEvent struct {
	Data interface{}
}

// UserHandler is invoked once per queued UserEvent.
type UserHandler func(l *Loop, ev UserEvent, userData interface{})

// Options configures a Loop at construction.
type Options struct {
	// Timeout bounds total wall-clock run time before the loop
	// broadcasts ALGORITHM_TERM to every instance (spec §4.9,
	// §6's "-t/--timeout"). Zero disables the watchdog.
	Timeout time.Duration

	// NetworkTimeoutSeconds is the network layer's default
	// per-probe timeout (spec §4.7); <= 0 selects its own 3.0s
	// default.
	NetworkTimeoutSeconds float64

	// MetricsRegistry is the Prometheus registerer the network
	// layer registers its counters against; nil is valid.
	MetricsRegistry prometheus.Registerer

	// UserHandler drains the user-facing event queue; nil is valid
	// (user events are then silently discarded).
	UserHandler UserHandler

	// UserData is passed verbatim to every UserHandler invocation.
	UserData interface{}
}

// Loop is the central dispatcher: one epoll instance multiplexing the
// network layer's send/recv/timeout/scheduling fds, the shared
// algorithm-instance queue, the user queue, a signal source, and an
// optional overall watchdog.
type Loop struct {
	log *log.Logger

	net    *network.Network
	algReg *algorithm.Registry

	epfd     int
	epfdOpen bool

	algQ  *eventFD
	userQ *eventFD
	sig   *signalSource
	wd    *watchdog

	timeout time.Duration

	mu        sync.Mutex
	instances map[int64]*algorithm.Instance
	order     []int64

	userHandler UserHandler
	userData    interface{}
	userPending []UserEvent
	userMu      sync.Mutex

	status    Status
	startedAt time.Time
}

// New constructs a Loop: opens the epoll multiplexer, the shared
// algorithm/user eventfds, the signal source and watchdog, the
// network layer, and registers every fd for read-readiness. Any
// construction failure is fatal per spec §7 ("inability to create the
// loop's multiplexer, event fds, or sniffer sockets aborts
// construction") — every resource opened before the failing step is
// released before returning.
func New(reg *protocol.Registry, algReg *algorithm.Registry, opts Options) (*Loop, error) {
	l := &Loop{
		log:       log.New("loop"),
		algReg:    algReg,
		instances: make(map[int64]*algorithm.Instance),
		timeout:   opts.Timeout,
		userHandler: opts.UserHandler,
		userData:    opts.UserData,
		status:      StatusRunning,
		startedAt:   time.Now(),
	}

	var err error
	l.epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("loop: epoll_create1: %w", err)
	}
	l.epfdOpen = true

	l.algQ, err = newEventFD()
	if err != nil {
		l.closePartial()
		return nil, fmt.Errorf("loop: algorithm queue eventfd: %w", err)
	}
	l.userQ, err = newEventFD()
	if err != nil {
		l.closePartial()
		return nil, fmt.Errorf("loop: user queue eventfd: %w", err)
	}
	l.sig, err = newSignalSource()
	if err != nil {
		l.closePartial()
		return nil, fmt.Errorf("loop: signalfd: %w", err)
	}
	l.wd, err = newWatchdog()
	if err != nil {
		l.closePartial()
		return nil, fmt.Errorf("loop: watchdog timerfd: %w", err)
	}

	l.net, err = network.New(reg, opts.NetworkTimeoutSeconds, opts.MetricsRegistry)
	if err != nil {
		l.closePartial()
		return nil, fmt.Errorf("loop: %w", err)
	}
	l.net.OnReply = l.onReply
	l.net.OnTimeout = l.onTimeout

	for _, fd := range []int{
		l.algQ.FD(), l.userQ.FD(), l.sig.FD(), l.wd.FD(),
		l.net.SendQueueFD(), l.net.RecvQueueFD(), l.net.TimeoutFD(), l.net.SchedulingFD(),
	} {
		if err := l.register(fd); err != nil {
			l.net.Close()
			l.closePartial()
			return nil, fmt.Errorf("loop: epoll_ctl add fd %d: %w", fd, err)
		}
	}

	return l, nil
}

func (l *Loop) register(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// closePartial releases whichever of the pre-network resources were
// successfully opened before a later step failed.
func (l *Loop) closePartial() {
	if l.wd != nil {
		l.wd.close()
	}
	if l.sig != nil {
		l.sig.close()
	}
	if l.userQ != nil {
		l.userQ.close()
	}
	if l.algQ != nil {
		l.algQ.close()
	}
	if l.epfdOpen {
		unix.Close(l.epfd)
	}
}

// Close releases every fd the loop owns, including the network layer.
func (l *Loop) Close() {
	l.net.Close()
	l.closePartial()
}

// RegisterAlgorithm looks up name in the algorithm registry and
// allocates a new Instance for it, enqueuing exactly one
// ALGORITHM_INIT event (spec §4.8). caller is nil for a user-started
// instance.
func (l *Loop) RegisterAlgorithm(name string, options interface{}, skeleton *probe.Probe, caller *algorithm.Instance) (*algorithm.Instance, error) {
	desc, ok := l.algReg.ByName(name)
	if !ok {
		return nil, fmt.Errorf("loop: unknown algorithm %q", name)
	}
	inst := algorithm.NewInstance(desc, options, skeleton, caller)

	l.mu.Lock()
	l.instances[inst.ID] = inst
	l.order = append(l.order, inst.ID)
	l.mu.Unlock()

	inst.Enqueue(algorithm.Event{Kind: algorithm.EventInit})
	if err := l.algQ.bump(); err != nil {
		return inst, fmt.Errorf("loop: signal algorithm queue: %w", err)
	}
	return inst, nil
}

// SendProbe tags p with inst's id as its caller and hands it to the
// network layer, which routes it through the scheduling tree if it
// carries a delay or sends it immediately otherwise (spec §4.7's
// send_probe/ScheduleProbe split). Returns immediately per spec §5.
func (l *Loop) SendProbe(inst *algorithm.Instance, p *probe.Probe) error {
	p.Caller = uint64(inst.ID)
	return l.net.ScheduleProbe(p)
}

// RaiseEvent queues a user-visible event, drained by the loop's
// UserHandler on the next user-queue readiness (spec §2).
func (l *Loop) RaiseEvent(data interface{}) error {
	l.userMu.Lock()
	l.userPending = append(l.userPending, UserEvent{Data: data})
	l.userMu.Unlock()
	return l.userQ.bump()
}

// RaiseError enqueues ALGORITHM_ERROR followed by ALGORITHM_TERMINATED
// on inst, per spec §7 ("raising ALGORITHM_ERROR ... triggers
// ALGORITHM_TERMINATED delivery and allows the handler to free its
// data").
func (l *Loop) RaiseError(inst *algorithm.Instance, cause error) error {
	inst.Enqueue(algorithm.Event{Kind: algorithm.EventError, Data: cause})
	inst.Enqueue(algorithm.Event{Kind: algorithm.EventTerminated})
	return l.algQ.bump()
}

// RaiseTerminated enqueues a clean ALGORITHM_TERMINATED cleanup signal
// on inst without an accompanying error.
func (l *Loop) RaiseTerminated(inst *algorithm.Instance) error {
	inst.Enqueue(algorithm.Event{Kind: algorithm.EventTerminated})
	return l.algQ.bump()
}

// Terminate requests a clean shutdown: every registered instance
// receives one ALGORITHM_TERM event, and Run exits once every
// instance and the user queue have drained (same convergence path as
// a SIGINT, spec §4.9, §5).
func (l *Loop) Terminate() error {
	if l.status == StatusTerminate {
		return nil
	}
	l.status = StatusInterrupted
	return l.broadcastTerm()
}

// Status reports the loop's current run state.
func (l *Loop) Status() Status { return l.status }

func (l *Loop) broadcastTerm() error {
	l.mu.Lock()
	order := append([]int64(nil), l.order...)
	l.mu.Unlock()
	for _, id := range order {
		l.mu.Lock()
		inst := l.instances[id]
		l.mu.Unlock()
		if inst != nil {
			inst.Enqueue(algorithm.Event{Kind: algorithm.EventTerm})
		}
	}
	return l.algQ.bump()
}

func (l *Loop) onReply(ev network.ReplyEvent) {
	l.mu.Lock()
	inst := l.instances[int64(ev.Caller)]
	l.mu.Unlock()
	if inst == nil {
		// Originating instance is gone (spec §9: a stable id
		// rather than a raw pointer lets this be detected instead
		// of dereferencing freed state); drop the reply.
		l.log.Infof("reply for unknown instance id %d dropped", ev.Caller)
		return
	}
	inst.Enqueue(algorithm.Event{
		Kind: algorithm.EventProbeReply,
		Data: &algorithm.ReplyData{Probe: ev.Probe, Reply: ev.Reply},
	})
	if err := l.algQ.bump(); err != nil {
		l.log.Warningf("signal algorithm queue: %v", err)
	}
}

func (l *Loop) onTimeout(ev network.TimeoutEvent) {
	l.mu.Lock()
	inst := l.instances[int64(ev.Caller)]
	l.mu.Unlock()
	if inst == nil {
		l.log.Infof("timeout for unknown instance id %d dropped", ev.Caller)
		return
	}
	inst.Enqueue(algorithm.Event{Kind: algorithm.EventProbeTimeout, Data: ev.Probe})
	if err := l.algQ.bump(); err != nil {
		l.log.Warningf("signal algorithm queue: %v", err)
	}
}

// Run drains readiness events until the loop reaches StatusTerminate:
// SIGINT/SIGQUIT or an explicit Terminate() moves it through
// StatusInterrupted first, during which network reads/sends are
// skipped but algorithm/user queues keep draining so handlers can
// clean up (spec §4.9, §5).
func (l *Loop) Run() error {
	if l.timeout > 0 {
		if err := l.wd.arm(l.timeout); err != nil {
			return fmt.Errorf("loop: arm watchdog: %w", err)
		}
	}

	events := make([]unix.EpollEvent, 64)
	for l.status != StatusTerminate {
		n, err := unix.EpollWait(l.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("loop: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				l.log.Warningf("epoll error/hup on fd %d", ev.Fd)
				continue
			}
			if err := l.dispatch(int(ev.Fd)); err != nil {
				l.log.Warningf("dispatch fd %d: %v", ev.Fd, err)
			}
		}

		if l.status == StatusInterrupted && l.quiescent() {
			l.status = StatusTerminate
		}
	}
	return nil
}

// quiescent reports whether every instance's pending queue and the
// user queue are empty, the condition that lets an interrupted loop
// finish breaking (spec §4.9).
func (l *Loop) quiescent() bool {
	l.mu.Lock()
	for _, id := range l.order {
		if l.instances[id].Pending() {
			l.mu.Unlock()
			return false
		}
	}
	l.mu.Unlock()

	l.userMu.Lock()
	empty := len(l.userPending) == 0
	l.userMu.Unlock()
	return empty
}

func (l *Loop) dispatch(fd int) error {
	switch fd {
	case l.net.SendQueueFD():
		if l.status == StatusInterrupted {
			return l.net.DrainSendQueueDiscarding()
		}
		return l.net.ProcessSendQ()
	case l.net.RecvQueueFD():
		if l.status == StatusInterrupted {
			return l.net.DrainRecvQueueDiscarding()
		}
		return l.net.ProcessRecvQ()
	case l.net.TimeoutFD():
		return l.net.DropExpiredFlyingProbe()
	case l.net.SchedulingFD():
		if l.status == StatusInterrupted {
			return nil
		}
		return l.net.ProcessScheduledProbe()
	case l.algQ.FD():
		return l.processAlgorithmQueue()
	case l.userQ.FD():
		return l.processUserQueue()
	case l.sig.FD():
		return l.processSignal()
	case l.wd.FD():
		return l.processWatchdog()
	default:
		return nil
	}
}

func (l *Loop) processAlgorithmQueue() error {
	if err := l.algQ.drainAll(); err != nil {
		return err
	}
	l.mu.Lock()
	order := append([]int64(nil), l.order...)
	l.mu.Unlock()

	var firstErr error
	for _, id := range order {
		l.mu.Lock()
		inst := l.instances[id]
		l.mu.Unlock()
		if inst == nil || !inst.Pending() {
			continue
		}
		err := inst.Drain(func(ev algorithm.Event) error {
			if inst.Desc.Handler == nil {
				return nil
			}
			return inst.Desc.Handler(l, ev, inst)
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Loop) processUserQueue() error {
	if err := l.userQ.drainAll(); err != nil {
		return err
	}
	l.userMu.Lock()
	events := l.userPending
	l.userPending = nil
	l.userMu.Unlock()

	if l.userHandler == nil {
		return nil
	}
	for _, ev := range events {
		l.userHandler(l, ev, l.userData)
	}
	return nil
}

func (l *Loop) processSignal() error {
	sig, err := l.sig.read()
	if err != nil {
		return err
	}
	switch sig {
	case unix.SIGINT, unix.SIGQUIT:
		l.log.Infof("received %v, broadcasting ALGORITHM_TERM", sig)
		l.status = StatusInterrupted
		return l.broadcastTerm()
	default:
		l.log.Warningf("unexpected signal %v on signalfd", sig)
		return nil
	}
}

func (l *Loop) processWatchdog() error {
	if err := l.wd.drain(); err != nil {
		return err
	}
	l.log.Infof("timeout elapsed, broadcasting ALGORITHM_TERM")
	l.status = StatusInterrupted
	return l.broadcastTerm()
}
