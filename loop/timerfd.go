package loop

import (
	"time"

	"golang.org/x/sys/unix"
)

// watchdog wraps a one-shot Linux timerfd used for the loop's overall
// `-t/--timeout` wall-clock budget (spec §4.9), kept distinct from the
// network layer's own per-probe timeout and scheduled-send timers so
// that none of the three ever contend over arm/disarm state.
type watchdog struct {
	fd int
}

func newWatchdog() (*watchdog, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &watchdog{fd: fd}, nil
}

// FD returns the timerfd for epoll registration.
func (w *watchdog) FD() int { return w.fd }

// arm schedules a one-shot firing after d. d <= 0 leaves the watchdog
// disarmed (used when no --timeout was configured).
func (w *watchdog) arm(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	var spec unix.ItimerSpec
	spec.Value = unix.NsecToTimespec(d.Nanoseconds())
	return unix.TimerfdSettime(w.fd, 0, &spec, nil)
}

// drain consumes the expiration counter after readiness.
func (w *watchdog) drain() error {
	var buf [8]byte
	_, err := unix.Read(w.fd, buf[:])
	return err
}

func (w *watchdog) close() error {
	return unix.Close(w.fd)
}
