package loop

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// signalfdSiginfoSize is sizeof(struct signalfd_siginfo) per the Linux
// ABI; only the first field (a little-endian uint32 signal number) is
// actually consulted here.
const signalfdSiginfoSize = 128

// signalSource blocks SIGINT and SIGQUIT from their default disposition
// and exposes them instead as a readable fd, so the event loop's
// multiplexer can treat a signal exactly like any other readiness
// source (spec §9's rewrite of "signal handling via signal-fd").
type signalSource struct {
	fd int
}

func sigsetAdd(set *unix.Sigset_t, sig int) {
	s := sig - 1
	set.Val[s/64] |= 1 << uint(s%64)
}

func newSignalSource() (*signalSource, error) {
	var set unix.Sigset_t
	sigsetAdd(&set, int(unix.SIGINT))
	sigsetAdd(&set, int(unix.SIGQUIT))

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return nil, err
	}
	fd, err := unix.Signalfd(-1, &set, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &signalSource{fd: fd}, nil
}

// FD returns the signalfd for epoll registration.
func (s *signalSource) FD() int { return s.fd }

// read consumes one pending signalfd_siginfo record and returns its
// signal number.
func (s *signalSource) read() (unix.Signal, error) {
	var buf [signalfdSiginfoSize]byte
	if _, err := unix.Read(s.fd, buf[:]); err != nil {
		return 0, err
	}
	return unix.Signal(binary.LittleEndian.Uint32(buf[0:4])), nil
}

func (s *signalSource) close() error {
	return unix.Close(s.fd)
}
