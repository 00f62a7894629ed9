package loop

import (
	"time"

	"github.com/spf13/pflag"
)

// defaultTimeoutSeconds mirrors the network layer's own per-probe
// default (spec §6: "default 3.0 at the network layer; the loop's own
// watchdog defaults to the same constant as configured").
const defaultTimeoutSeconds = 3.0

// TimeoutFlag binds the loop's shared `-t/--timeout` CLI surface (spec
// §6) onto fs, returning a pointer an embedding CLI front-end reads
// after fs.Parse and passes into Options.Timeout via Seconds().
// Algorithms share this flag rather than each declaring their own,
// per spec §6 ("loop-level CLI surface ... exposed so algorithms share
// it").
type TimeoutFlag struct {
	seconds float64
}

// BindTimeoutFlag registers -t/--timeout on fs and returns a handle
// whose Seconds/Duration are only meaningful after fs.Parse has run.
func BindTimeoutFlag(fs *pflag.FlagSet) *TimeoutFlag {
	f := &TimeoutFlag{}
	fs.Float64VarP(&f.seconds, "timeout", "t", defaultTimeoutSeconds,
		"maximum total wall-clock time before the loop cancels all running algorithm instances")
	return f
}

// Seconds returns the configured timeout in seconds.
func (f *TimeoutFlag) Seconds() float64 { return f.seconds }

// Duration returns the configured timeout as a time.Duration, ready
// to assign to Options.Timeout.
func (f *TimeoutFlag) Duration() time.Duration {
	return time.Duration(f.seconds * float64(time.Second))
}
