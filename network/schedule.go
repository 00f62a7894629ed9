package network

import (
	"github.com/probeweave/probeengine/probe"
	"github.com/probeweave/probeengine/probegroup"
)

// attachScheduler wires a ProbeGroup and its scheduling timerfd into
// n. Called once from New; split out so the zero-scheduled case (no
// algorithm ever calls ScheduleProbe) never arms a timer needlessly.
func (n *Network) attachScheduler() error {
	t, err := newTimer()
	if err != nil {
		return err
	}
	n.schedTimer = t
	n.group = probegroup.New()
	return nil
}

// SchedulingFD exposes the scheduled-send timerfd for epoll
// registration.
func (n *Network) SchedulingFD() int {
	return n.schedTimer.FD()
}

// ScheduleProbe inserts p into the scheduling tree at its next delay
// rather than sending immediately; best-effort probes (no delay set)
// go straight to SendProbe instead.
func (n *Network) ScheduleProbe(p *probe.Probe) error {
	if !p.IsScheduled() {
		return n.SendProbe(p)
	}
	delay := p.NextDelay()
	wasEmpty := n.group.Empty()
	n.group.Insert(p, delay)
	if wasEmpty || n.group.RootDelay() == delay {
		return n.schedTimer.arm(secondsToDuration(n.group.RootDelay()))
	}
	return nil
}

// ProcessScheduledProbe fires every probe whose scheduling-tree delay
// equals the current root delay: each is removed from the tree, sent,
// and — if its delay is generator-backed — reinserted with a freshly
// advanced delay. The timer is rearmed to the new root delay, or
// disarmed if the tree is now empty.
func (n *Network) ProcessScheduledProbe() error {
	if err := n.schedTimer.drain(); err != nil {
		return err
	}
	due := n.group.NextScheduled()
	for _, p := range due {
		n.group.Delete(p)
		if err := n.SendProbe(p); err != nil {
			n.log.Warningf("scheduled send failed: %v", err)
		}
		if p.Recurring() {
			n.group.Insert(p, p.NextDelay())
		}
	}
	if n.group.Empty() {
		return n.schedTimer.disarm()
	}
	return n.schedTimer.arm(secondsToDuration(n.group.RootDelay()))
}
