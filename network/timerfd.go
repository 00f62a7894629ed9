package network

import (
	"time"

	"golang.org/x/sys/unix"
)

// timer wraps a Linux timerfd: a one-shot deadline exposed as a
// readable fd the event loop's epoll multiplexer can wait on directly,
// instead of polling a wall-clock comparison every iteration.
type timer struct {
	fd int
}

func newTimer() (*timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &timer{fd: fd}, nil
}

// FD returns the timerfd for epoll registration.
func (t *timer) FD() int {
	return t.fd
}

// arm schedules the timer to fire once after d. d <= 0 disarms it.
func (t *timer) arm(d time.Duration) error {
	var spec unix.ItimerSpec
	if d > 0 {
		spec.Value = unix.NsecToTimespec(d.Nanoseconds())
	}
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// disarm cancels any pending firing.
func (t *timer) disarm() error {
	return t.arm(0)
}

// drain consumes the 8-byte expiration counter after readiness, as
// required before the fd will report readiness again.
func (t *timer) drain() error {
	var buf [8]byte
	_, err := unix.Read(t.fd, buf[:])
	return err
}

func (t *timer) close() error {
	return unix.Close(t.fd)
}
