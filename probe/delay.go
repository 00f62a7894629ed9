package probe

import "github.com/probeweave/probeengine/generator"

// Delay is a probe's scheduled-send delay: either unset (best-effort,
// reports -1), a fixed scalar, or a generator advanced on each call to
// Next.
type Delay struct {
	set  bool
	gen  *generator.Generator
	scal float64
}

// NoDelay returns an unset, best-effort Delay.
func NoDelay() Delay {
	return Delay{}
}

// Scalar returns a Delay that always reports seconds verbatim.
func Scalar(seconds float64) Delay {
	return Delay{set: true, scal: seconds}
}

// FromGenerator returns a Delay backed by g; each call to Next
// advances g.
func FromGenerator(g *generator.Generator) Delay {
	return Delay{set: true, gen: g}
}

// recurring reports whether this Delay is backed by a generator,
// i.e. whether the probe it belongs to should be rescheduled (rather
// than fired once) after each send.
func (d *Delay) recurring() bool {
	return d.gen != nil
}

// Next returns the next delay value in seconds, or -1 if unset.
func (d *Delay) Next() float64 {
	if !d.set {
		return -1
	}
	if d.gen != nil {
		return d.gen.NextValue()
	}
	return d.scal
}
