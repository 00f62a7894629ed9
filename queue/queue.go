// Package queue implements Queue: a FIFO paired with a semaphoric
// Linux eventfd, so the event loop can learn "N items are waiting"
// purely from epoll readiness without a separate wakeup channel.
package queue

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// Queue is a generic FIFO of items of type T. Push increments the
// attached eventfd by one (semaphore mode: each unit pushed requires
// one matching read to drain); Pop does not touch the eventfd, so the
// caller consumes one unit with Drain per popped item.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	fd    int
}

// New creates a Queue backed by a non-blocking, semaphore-mode eventfd.
// Callers must Close the queue when done to release the fd.
func New[T any]() (*Queue[T], error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_SEMAPHORE|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Queue[T]{fd: fd}, nil
}

// FD returns the eventfd to register with the event loop's
// multiplexer for read-readiness.
func (q *Queue[T]) FD() int {
	return q.fd
}

// Push appends item and signals the eventfd once.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	return bump(q.fd)
}

// Pop removes and returns the oldest item. The second return is false
// if the queue was empty. Callers are expected to have first drained
// one unit from the eventfd (a readiness-triggered unix.Read of 8
// bytes) before calling Pop, matching the semaphore protocol.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain reads and discards one pending eventfd unit, as the loop does
// after observing read-readiness before calling Pop. Returns
// unix.EAGAIN-wrapped errors verbatim so callers can tell "nothing
// pending" from a real failure.
func (q *Queue[T]) Drain() error {
	var buf [8]byte
	_, err := unix.Read(q.fd, buf[:])
	return err
}

// Close releases the eventfd.
func (q *Queue[T]) Close() error {
	return unix.Close(q.fd)
}

func bump(fd int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(fd, buf[:])
	return err
}
