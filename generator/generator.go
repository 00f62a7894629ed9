// Package generator implements Generator: a named, parameterized
// numeric value-source used by probes as a lazily-advanced delay.
package generator

import "github.com/probeweave/probeengine/field"

// Generator is a named value-source with a parameter table (e.g.
// "mean" for a Poisson-ish generator) and a NextValue function that
// advances its internal state and returns the next value.
type Generator struct {
	Name   string
	Params []field.Field

	next func() float64
}

// New constructs a Generator named name with the given parameters,
// drawing successive values from next.
func New(name string, params []field.Field, next func() float64) *Generator {
	return &Generator{Name: name, Params: params, next: next}
}

// NextValue advances the generator and returns its next value.
func (g *Generator) NextValue() float64 {
	return g.next()
}

// Param returns the named parameter field, if declared.
func (g *Generator) Param(name string) (field.Field, bool) {
	for _, f := range g.Params {
		if f.Name == name {
			return f, true
		}
	}
	return field.Field{}, false
}
