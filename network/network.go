// Package network implements the Network layer: it tags outgoing
// probes, sends them over raw sockets, sniffs ICMP replies, matches
// them back to the probe that provoked them, and enforces per-probe
// timeouts and scheduled-send delays — the component the event loop
// drives on every readiness iteration.
package network

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/probeweave/probeengine/log"
	"github.com/probeweave/probeengine/packet"
	"github.com/probeweave/probeengine/probe"
	"github.com/probeweave/probeengine/probegroup"
	"github.com/probeweave/probeengine/protocol"
	"github.com/probeweave/probeengine/queue"
)

const defaultTimeoutSeconds = 3.0

// ReplyEvent is delivered when an in-flight probe is matched to a
// reply.
type ReplyEvent struct {
	Caller uint64
	Probe  *probe.Probe
	Reply  *probe.Probe
}

// TimeoutEvent is delivered when an in-flight probe's deadline
// expires unanswered.
type TimeoutEvent struct {
	Caller uint64
	Probe  *probe.Probe
}

type receivedPacket struct {
	pkt *packet.Packet
}

// Network is the probe-dispatch and reply-correlation layer.
type Network struct {
	reg *protocol.Registry
	log *log.Logger

	socks *socketPool
	sniff *sniffer

	sendQ *queue.Queue[*probe.Probe]
	recvQ *queue.Queue[receivedPacket]

	flying *flyingProbes

	timeoutTimer *timer
	timeoutSec   float64

	schedTimer *timer
	group      *probegroup.ProbeGroup

	metrics *metrics

	lastTag uint16

	mu sync.Mutex

	// callers — wired by the loop, invoked synchronously from
	// ProcessRecvQ/DropExpiredFlyingProbe.
	OnReply   func(ReplyEvent)
	OnTimeout func(TimeoutEvent)

	recvStop chan struct{}
	recvWG   sync.WaitGroup
}

// New constructs the network layer: opens the socketpool and
// sniffer (fatal on total failure, per spec §7), the send/recv
// queues, and the timeout timer. timeoutSec <= 0 selects the
// spec default of 3.0s. metricsReg is the registry the embedding loop
// owns; a nil registerer is valid and simply discards registration
// (promauto.With(nil) panics, so nil is swapped for a private registry
// in that case — the counters still work, they are just unreachable
// from outside).
func New(reg *protocol.Registry, timeoutSec float64, metricsReg prometheus.Registerer) (*Network, error) {
	if timeoutSec <= 0 {
		timeoutSec = defaultTimeoutSeconds
	}
	if metricsReg == nil {
		metricsReg = prometheus.NewRegistry()
	}

	socks, err := newSocketPool()
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	sniff, err := newSniffer()
	if err != nil {
		socks.close()
		return nil, fmt.Errorf("network: %w", err)
	}
	sendQ, err := queue.New[*probe.Probe]()
	if err != nil {
		socks.close()
		sniff.close()
		return nil, fmt.Errorf("network: send queue: %w", err)
	}
	recvQ, err := queue.New[receivedPacket]()
	if err != nil {
		socks.close()
		sniff.close()
		sendQ.Close()
		return nil, fmt.Errorf("network: recv queue: %w", err)
	}
	timeoutTimer, err := newTimer()
	if err != nil {
		socks.close()
		sniff.close()
		sendQ.Close()
		recvQ.Close()
		return nil, fmt.Errorf("network: timeout timer: %w", err)
	}

	n := &Network{
		reg:          reg,
		log:          log.New("network"),
		socks:        socks,
		sniff:        sniff,
		sendQ:        sendQ,
		recvQ:        recvQ,
		flying:       newFlyingProbes(),
		timeoutTimer: timeoutTimer,
		timeoutSec:   timeoutSec,
		metrics:      newMetrics(metricsReg),
		recvStop:     make(chan struct{}),
	}
	if err := n.attachScheduler(); err != nil {
		socks.close()
		sniff.close()
		sendQ.Close()
		recvQ.Close()
		timeoutTimer.close()
		return nil, fmt.Errorf("network: scheduling timer: %w", err)
	}
	n.startSniffing()
	return n, nil
}

// SendQueueFD, RecvQueueFD, and TimeoutFD expose the readiness fds the
// event loop registers with its epoll multiplexer.
func (n *Network) SendQueueFD() int { return n.sendQ.FD() }
func (n *Network) RecvQueueFD() int { return n.recvQ.FD() }
func (n *Network) TimeoutFD() int   { return n.timeoutTimer.FD() }

// SendProbe enqueues p for transmission; it returns immediately, per
// spec §5 ("send_probe returns immediately; probe is enqueued").
func (n *Network) SendProbe(p *probe.Probe) error {
	return n.sendQ.Push(p)
}

// startSniffing spawns one goroutine per available sniffer socket
// pushing received packets onto recvQ. golang.org/x/net/icmp's
// PacketConn does not expose a raw fd suitable for epoll registration,
// so the sniffer side uses the same goroutine-feeds-a-queue pattern as
// the rest of this core's blocking I/O, converging back onto the same
// semaphoric queue the epoll loop already watches.
func (n *Network) startSniffing() {
	if n.sniff.v4 != nil {
		n.recvWG.Add(1)
		go n.sniffLoop(n.sniff.readV4)
	}
	if n.sniff.v6 != nil {
		n.recvWG.Add(1)
		go n.sniffLoop(n.sniff.readV6)
	}
}

func (n *Network) sniffLoop(read func([]byte) (int, net.Addr, error)) {
	defer n.recvWG.Done()
	buf := make([]byte, 65535)
	for {
		select {
		case <-n.recvStop:
			return
		default:
		}
		sz, _, err := read(buf)
		if err != nil {
			select {
			case <-n.recvStop:
				return
			default:
				continue
			}
		}
		pkt := packet.NewFromBytes(buf[:sz])
		if err := n.recvQ.Push(receivedPacket{pkt: pkt}); err != nil {
			n.log.Warningf("recv queue push failed: %v", err)
			n.metrics.dropped.WithLabelValues("recv_queue_full").Inc()
		}
	}
}

// ProcessSendQ dequeues one probe, runs its consistency pass, tags it,
// sends it on the matching raw socket, and tracks it in flying_probes,
// arming the timeout timer if it is the first in-flight probe.
func (n *Network) ProcessSendQ() error {
	if err := n.sendQ.Drain(); err != nil {
		return err
	}
	p, ok := n.sendQ.Pop()
	if !ok {
		return nil
	}

	if err := p.UpdateFields(); err != nil {
		return fmt.Errorf("network: update_fields: %w", err)
	}

	n.mu.Lock()
	n.lastTag++
	tag := n.lastTag
	n.mu.Unlock()

	if err := tagProbe(p, tag); err != nil {
		return fmt.Errorf("network: tag probe: %w", err)
	}

	dst, err := p.ExtractDstIP()
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := n.socks.send(dst, p.Packet().Bytes()); err != nil {
		return fmt.Errorf("network: send: %w", err)
	}

	wasEmpty := n.flying.len() == 0
	entry := &flyingEntry{probe: p, tag: tag, sentAt: time.Now(), timeout: secondsToDuration(n.timeoutSec)}
	n.flying.push(entry)
	n.metrics.sent.Inc()
	n.metrics.flying.Set(float64(n.flying.len()))
	if wasEmpty {
		return n.timeoutTimer.arm(entry.timeout)
	}
	return nil
}

// ProcessRecvQ dequeues one received packet, wraps it into a probe,
// and matches it against flying_probes: by tag for ICMP-error replies
// (quoted inner header), or by the protocol's own Matches predicate
// for direct replies (ICMP echo) which carry no quoted header to tag.
// A match removes the entry from flying_probes, rearms the timeout
// timer to the new head, and invokes OnReply. A miss is dropped with a
// log line, per spec §7.
func (n *Network) ProcessRecvQ() error {
	if err := n.recvQ.Drain(); err != nil {
		return err
	}
	rp, ok := n.recvQ.Pop()
	if !ok {
		return nil
	}

	reply, err := probe.WrapPacket(n.reg, rp.pkt)
	if err != nil {
		n.log.Warningf("dissection failed: %v", err)
		n.metrics.dropped.WithLabelValues("dissection_failed").Inc()
		return nil
	}

	entry := n.matchReply(reply)
	if entry == nil {
		n.log.Infof("reply matched no in-flight probe; dropped")
		n.metrics.dropped.WithLabelValues("unmatched").Inc()
		return nil
	}
	n.metrics.matched.Inc()

	wasHead := n.flying.head() == entry
	n.flying.remove(entry)
	n.metrics.flying.Set(float64(n.flying.len()))
	if wasHead {
		if head := n.flying.head(); head != nil {
			if err := n.timeoutTimer.arm(remaining(head)); err != nil {
				return err
			}
		} else {
			if err := n.timeoutTimer.disarm(); err != nil {
				return err
			}
		}
	}

	if n.OnReply != nil {
		n.OnReply(ReplyEvent{Caller: entry.probe.Caller, Probe: entry.probe, Reply: reply})
	}
	return nil
}

// matchReply implements spec §4.7's matching rule, falling back to the
// per-protocol Matches predicate when the reply has no quoted inner
// header to extract a tag from.
func (n *Network) matchReply(reply *probe.Probe) *flyingEntry {
	if tag, ok := replyTag(reply); ok {
		if e := n.flying.byTagLookup(tag); e != nil {
			return e
		}
	}
	for _, e := range n.flying.all() {
		views := e.probe.Views()
		if len(views) < 2 {
			continue
		}
		transport := views[1]
		if transport.Descriptor == nil || transport.Descriptor.Matches == nil {
			continue
		}
		if transport.Descriptor.Matches(views, reply.Views()) {
			return e
		}
	}
	return nil
}

// DrainSendQueueDiscarding consumes one send-queue readiness unit and
// its probe without transmitting it, used while the loop is
// interrupted (spec §5: "further network reads/sends are skipped").
func (n *Network) DrainSendQueueDiscarding() error {
	if err := n.sendQ.Drain(); err != nil {
		return err
	}
	n.sendQ.Pop()
	return nil
}

// DrainRecvQueueDiscarding consumes one recv-queue readiness unit and
// its packet without dissecting or matching it, used while the loop is
// interrupted.
func (n *Network) DrainRecvQueueDiscarding() error {
	if err := n.recvQ.Drain(); err != nil {
		return err
	}
	n.recvQ.Pop()
	return nil
}

// DropExpiredFlyingProbe pops the head of flying_probes, invokes
// OnTimeout, and rearms the timer to the new head's remaining time.
func (n *Network) DropExpiredFlyingProbe() error {
	if err := n.timeoutTimer.drain(); err != nil {
		return err
	}
	entry := n.flying.popHead()
	if entry == nil {
		return nil
	}
	n.metrics.timeout.Inc()
	n.metrics.flying.Set(float64(n.flying.len()))
	if n.OnTimeout != nil {
		n.OnTimeout(TimeoutEvent{Caller: entry.probe.Caller, Probe: entry.probe})
	}
	if head := n.flying.head(); head != nil {
		return n.timeoutTimer.arm(remaining(head))
	}
	return n.timeoutTimer.disarm()
}

// Close releases every resource the network layer owns: sockets,
// queues, and the timeout timer.
func (n *Network) Close() {
	close(n.recvStop)
	n.recvWG.Wait()
	n.socks.close()
	n.sniff.close()
	n.sendQ.Close()
	n.recvQ.Close()
	n.timeoutTimer.close()
	n.schedTimer.close()
}

func remaining(e *flyingEntry) time.Duration {
	d := time.Until(e.deadline())
	if d < 0 {
		return 0
	}
	return d
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
