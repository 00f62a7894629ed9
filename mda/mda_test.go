package mda

import (
	"math"
	"testing"
)

func TestMinProbesForBranchingNoAlternative(t *testing.T) {
	if got := MinProbesForBranching(1, 0.95); got != 1 {
		t.Fatalf("MinProbesForBranching(1, 0.95) = %d, want 1", got)
	}
	if got := MinProbesForBranching(0, 0.95); got != 1 {
		t.Fatalf("MinProbesForBranching(0, 0.95) = %d, want 1", got)
	}
}

func TestMinProbesForBranchingIncreasesWithBranching(t *testing.T) {
	two := MinProbesForBranching(2, 0.95)
	eight := MinProbesForBranching(8, 0.95)
	if eight <= two {
		t.Fatalf("MinProbesForBranching(8, .95) = %d, want > MinProbesForBranching(2, .95) = %d", eight, two)
	}
}

func TestMinProbesForBranchingIncreasesWithConfidence(t *testing.T) {
	lo := MinProbesForBranching(4, 0.90)
	hi := MinProbesForBranching(4, 0.99)
	if hi <= lo {
		t.Fatalf("MinProbesForBranching(4, .99) = %d, want > MinProbesForBranching(4, .90) = %d", hi, lo)
	}
}

func TestMinProbesForBranchingMeetsConfidenceBound(t *testing.T) {
	branching, confidence := 6, 0.95
	n := MinProbesForBranching(branching, confidence)

	p := 1 - 1/float64(branching)
	missProbAtN := math.Pow(p, float64(n-1))
	missProbAtNMinus1 := math.Pow(p, float64(n-2))

	if missProbAtN > 1-confidence {
		t.Fatalf("n=%d still exceeds the miss-probability bound: %v > %v", n, missProbAtN, 1-confidence)
	}
	if n > 1 && missProbAtNMinus1 <= 1-confidence {
		t.Fatalf("n=%d is not minimal: n-1 already satisfies the bound (%v <= %v)", n, missProbAtNMinus1, 1-confidence)
	}
}
