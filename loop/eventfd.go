package loop

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// eventFD is a semaphore-mode Linux eventfd used for the loop's two
// shared readiness sources (spec §4.9): the algorithm queue (one
// eventfd shared by every registered instance's own pending list) and
// the user queue. Unlike queue.Queue, no payload travels through the
// fd itself — the counter only signals "at least one event is
// waiting somewhere"; the payload lives in the instance's pending
// slice or the loop's userQueue slice.
type eventFD struct {
	fd int
}

func newEventFD() (*eventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_SEMAPHORE|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &eventFD{fd: fd}, nil
}

// FD returns the eventfd for epoll registration.
func (e *eventFD) FD() int { return e.fd }

// bump signals the eventfd once.
func (e *eventFD) bump() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(e.fd, buf[:])
	return err
}

// drainAll consumes every currently pending unit, stopping at the
// first EAGAIN. The loop calls this once per readiness wakeup before
// walking the underlying payload, since several events may have been
// enqueued between two epoll_wait returns.
func (e *eventFD) drainAll() error {
	var buf [8]byte
	for {
		_, err := unix.Read(e.fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return err
		}
	}
}

func (e *eventFD) close() error {
	return unix.Close(e.fd)
}
