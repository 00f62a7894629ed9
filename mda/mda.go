// Package mda restores the one piece of Multipath Detection Algorithm
// support this core commits to: the statistical stopping rule an MDA
// handler (living outside this core, per spec §1) uses to decide how
// many probes are "enough" to conclude a given branching factor at a
// given hop with a given confidence.
//
// The core does not implement MDA itself — only this helper, named in
// the glossary's description of MDA as "a statistical test on flow-id
// variation".
package mda

import "math"

// MinProbesForBranching returns the minimum number of probes an MDA
// handler must send on a flow-diverse basis to conclude, at the given
// confidence level (0, 1), that a hop has at most branching-1
// additional next-hops it has not yet observed.
//
// Each probe lands on any one of branching candidates with probability
// 1/branching, so it misses a given still-unseen next-hop with
// probability 1-1/branching. The first probe always reveals a
// next-hop; the stopping rule is the smallest n such that the chance
// of the n-1 probes after it all missing a given still-unseen next-hop
// is at most 1-confidence:
//
//	(1 - 1/branching)^(n-1) <= 1-confidence
//
// which rearranges to the ceiling below. branching <= 1 has no
// alternative next-hop to miss, so one probe always suffices.
func MinProbesForBranching(branching int, confidence float64) int {
	if branching <= 1 {
		return 1
	}
	if confidence <= 0 {
		return 1
	}
	if confidence >= 1 {
		confidence = 0.999999
	}
	p := 1 - 1/float64(branching)
	n := math.Log(1-confidence)/math.Log(p) + 1
	return int(math.Ceil(n))
}
