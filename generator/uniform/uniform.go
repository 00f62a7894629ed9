// Package uniform supplements the generator package with a
// uniform-distribution delay generator, drawing from math/rand's
// shared source rather than a hand-rolled PRNG.
package uniform

import (
	"math/rand"

	"github.com/probeweave/probeengine/field"
	"github.com/probeweave/probeengine/generator"
)

// New returns a Generator drawing successive values uniformly from
// [min, max), parameterized by "min" and "max" fields.
func New(min, max float64) *generator.Generator {
	params := []field.Field{
		field.NewDouble("min", min),
		field.NewDouble("max", max),
	}
	return generator.New("uniform", params, func() float64 {
		return min + rand.Float64()*(max-min)
	})
}
